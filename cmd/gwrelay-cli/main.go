package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/botlabs-gg/gwrelay/lib/gwrelay/broker/rest"
	"github.com/jedib0t/go-pretty/table"
	"github.com/mitchellh/cli"
)

var restClient *rest.Client
var serverAddr = os.Getenv("GWRELAY_CLI_ADDR")

func main() {
	flag.Parse()

	if serverAddr == "" {
		serverAddr = "http://127.0.0.1:7448"
	}

	restClient = rest.NewClient(serverAddr)

	app := cli.NewCLI("gwrelay-cli", "0.1")
	app.Args = flag.Args()

	app.Commands = map[string]cli.CommandFactory{
		"status":         StaticFactory(&StatusCommand{}),
		"disconnectslot": StaticFactory(&DisconnectSlotCmd{}),
	}

	exitStatus, err := app.Run()
	if err != nil {
		fmt.Println("Error: ", err)
	}

	os.Exit(exitStatus)
}

type StatusCommand struct{}

func (s *StatusCommand) Help() string {
	return s.Synopsis()
}

func (s *StatusCommand) Run(args []string) int {
	resp, err := restClient.GetStatus()
	if err != nil {
		fmt.Println("Error: ", err)
		return 1
	}

	fmt.Print(renderStatus(resp))
	return 0
}

func (s *StatusCommand) Synopsis() string {
	return "display status of all worker slots, their shards and the pooled connections"
}

func renderStatus(resp *rest.StatusResponse) string {
	status := resp.Status

	slots := table.NewWriter()
	slots.AppendHeader(table.Row{"slot", "connected", "conn", "version", "addr", "bound for", "shards"})
	for _, v := range status.Slots {
		boundFor := ""
		if v.Connected {
			boundFor = time.Since(v.BoundAt).Round(time.Second).String()
		}

		slots.AppendRow(table.Row{v.SlotID, v.Connected, v.ConnID, v.Version, v.Addr, boundFor, PrettyFormatNumberList(v.ShardIDs)})
	}

	shards := table.NewWriter()
	shards.AppendHeader(table.Row{"shard", "slot", "status", "ready state", "queue", "guilds buffered", "guilds sent", "guilds expected"})
	for _, slot := range status.Slots {
		for _, v := range slot.Shards {
			shards.AppendRow(table.Row{v.ShardID, slot.SlotID, v.Status, v.ReadyState, v.QueueLength, v.BufferedGuilds, v.SentGuilds, v.ExpectedGuilds})
		}
	}

	pool := table.NewWriter()
	pool.AppendHeader(table.Row{"conn", "version", "addr", "waiting for"})
	for _, v := range status.Pool {
		pool.AppendRow(table.Row{v.ConnID, v.Version, v.Addr, time.Since(v.Since).Round(time.Second).String()})
	}

	out := fmt.Sprintf("%d slots, %d shards\n", status.ClientCount, status.ShardCount)
	out += slots.Render() + "\n\n"
	out += shards.Render() + "\n\n"
	out += "pool:\n" + pool.Render() + "\n"
	return out
}

type DisconnectSlotCmd struct{}

func (s *DisconnectSlotCmd) Help() string {
	return s.Synopsis()
}

func (s *DisconnectSlotCmd) Run(args []string) int {
	if len(args) < 1 || args[0] == "" {
		fmt.Println("no slot specified")
		return 1
	}

	slot, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Println("invalid slot: ", err)
		return 1
	}

	msg, err := restClient.DisconnectSlot(slot)
	if err != nil {
		fmt.Println("Error: ", err)
		return 1
	}

	fmt.Println(msg)
	return 0
}

func (s *DisconnectSlotCmd) Synopsis() string {
	return "disconnects the worker on the specified slot, a pooled connection takes over"
}

func StaticFactory(c cli.Command) cli.CommandFactory {
	return func() (cli.Command, error) {
		return c, nil
	}
}
