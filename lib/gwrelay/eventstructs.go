package gwrelay

type AvailableData struct {
	Version string `json:"v"`
}

type IdentifyData struct {
	ShardID int             `json:"shardId"`
	Data    IdentifyPayload `json:"d"`
}

type IdentifyPayload struct {
	ExpectedGuilds []string `json:"expectedGuilds"`
}

// ShardAckData is used for both OpReadyForGuilds and OpReady
type ShardAckData struct {
	ShardID int `json:"shardId"`
}

type DispatchData struct {
	ShardID int    `json:"shardId"`
	Event   *Event `json:"d"`
}
