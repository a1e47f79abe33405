package upstream

import (
	"context"
	"sync"
	"time"

	"github.com/botlabs-gg/gwrelay/lib/gwrelay"
	"github.com/bwmarrin/discordgo"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var logger = logrus.WithField("p", "upstream")

const (
	eventReady   = "READY"
	eventResumed = "RESUMED"
)

// DefaultIntents are the gateway intents the relayed sessions identify with
const DefaultIntents = discordgo.IntentGuilds |
	discordgo.IntentGuildMessages |
	discordgo.IntentGuildMessageReactions |
	discordgo.IntentGuildMembers |
	discordgo.IntentMessageContent |
	discordgo.IntentDirectMessages

// DiscordLauncher opens discord gateway sessions, one per shard
type DiscordLauncher struct {
	Token      string
	ShardCount int
	Intents    discordgo.Intent

	// spaces out identifies across every shard launched
	identifyLimiter *rate.Limiter

	mu       sync.Mutex
	sessions []*discordgo.Session
}

var _ Launcher = (*DiscordLauncher)(nil)

func NewDiscordLauncher(token string, shardCount int) *DiscordLauncher {
	return &DiscordLauncher{
		Token:           token,
		ShardCount:      shardCount,
		Intents:         DefaultIntents,
		identifyLimiter: rate.NewLimiter(rate.Every(time.Second*5), 1),
	}
}

func (d *DiscordLauncher) Launch(ctx context.Context, slot int, shardIDs []int, handler Handler) error {
	for _, shardID := range shardIDs {
		err := d.identifyLimiter.Wait(ctx)
		if err != nil {
			return errors.WithMessage(err, "identifyLimiter.Wait")
		}

		session, err := d.newSession(shardID, handler)
		if err != nil {
			return err
		}

		logger.WithField("slot", slot).WithField("shard", shardID).Info("opening gateway session")
		err = session.Open()
		if err != nil {
			return errors.WithMessagef(err, "open shard %d", shardID)
		}

		d.mu.Lock()
		d.sessions = append(d.sessions, session)
		d.mu.Unlock()
	}

	return nil
}

func (d *DiscordLauncher) newSession(shardID int, handler Handler) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + d.Token)
	if err != nil {
		return nil, errors.WithMessage(err, "discordgo.New")
	}

	session.ShardID = shardID
	session.ShardCount = d.ShardCount
	session.Identify.Intents = d.Intents
	session.StateEnabled = false

	// handlers run in the order the events were received
	session.SyncEvents = true

	session.AddHandler(func(s *discordgo.Session, c *discordgo.Connect) {
		handler.OnUpstreamHello(shardID)
	})
	session.AddHandler(func(s *discordgo.Session, e *discordgo.Event) {
		RouteEvent(handler, shardID, e)
	})

	return session, nil
}

// RouteEvent hands a raw gateway dispatch to the matching handler method
func RouteEvent(handler Handler, shardID int, e *discordgo.Event) {
	switch e.Type {
	case eventReady:
		guildIDs, err := gwrelay.ReadyGuildIDs(e.RawData)
		if err != nil {
			logger.WithError(err).WithField("shard", shardID).Error("failed parsing guilds from ready")
		}

		handler.OnUpstreamReady(shardID, guildIDs)
	case eventResumed:
		handler.OnUpstreamResumed(shardID)
	default:
		if e.Type == "" {
			return
		}

		handler.OnUpstreamDispatch(shardID, &gwrelay.Event{
			Operation: e.Operation,
			Sequence:  e.Sequence,
			Type:      e.Type,
			RawData:   jsoniter.RawMessage(e.RawData),
		})
	}
}

func (d *DiscordLauncher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var lastErr error
	for _, v := range d.sessions {
		err := v.Close()
		if err != nil {
			lastErr = err
		}
	}

	d.sessions = nil
	return lastErr
}

// LogGatewayInfo logs the gateway connection limits and the bot user
func LogGatewayInfo(token string) error {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return errors.WithMessage(err, "discordgo.New")
	}

	gw, err := session.GatewayBot()
	if err != nil {
		return errors.WithMessage(err, "GatewayBot")
	}

	user, err := session.User("@me")
	if err != nil {
		return errors.WithMessage(err, "User")
	}

	logger.WithFields(logrus.Fields{
		"url":                gw.URL,
		"recommended_shards": gw.Shards,
		"total_sessions":     gw.SessionStartLimit.Total,
		"remaining_sessions": gw.SessionStartLimit.Remaining,
		"reset_after_ms":     gw.SessionStartLimit.ResetAfter,
		"max_concurrency":    gw.SessionStartLimit.MaxConcurrency,
	}).Info("gateway info")

	logger.Infof("logged in as %s (%s)", user.String(), user.ID)
	return nil
}
