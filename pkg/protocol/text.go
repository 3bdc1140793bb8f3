package protocol

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	textFrameStart  = "#!NGINXNMS!#"
	textFrameEnd    = "#!NGINXNME!#"
	textPlaceholder = `"---replace---"`
)

type textMessage struct {
	ID      uint64 `json:"id"`
	MID     string `json:"mid"`
	Channel string `json:"channel"`
	Tag     string `json:"tag"`
	Time    string `json:"time"`
	Text    string `json:"text"`
}

type textChannelInfo struct {
	Channel     string `json:"channel"`
	Subscribers int    `json:"subscribers"`
}

type textChannelStats struct {
	Infos []textChannelInfo `json:"infos"`
}

// EncodeText renders responses in the legacy plain-text format.
// now stamps the time and tag of every outgoing message frame.
func EncodeText(now time.Time, responses ...Response) string {
	var b strings.Builder
	for _, r := range responses {
		switch r.Kind {
		case ResponseOutgoingMessages:
			for _, m := range r.OutgoingMessages {
				b.WriteString(encodeTextMessage(now, m))
			}
		case ResponseChannelStats:
			b.WriteString(encodeTextChannelStats(r.ChannelStats))
		case ResponseServerStats:
			b.WriteString(r.ServerStats)
		}
	}
	return b.String()
}

// The body is spliced in raw, not as a JSON string.
func encodeTextMessage(now time.Time, m OutgoingMessage) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)

	frame := textMessage{
		ID:      MessageCounter(m.ID),
		MID:     hex.EncodeToString(m.ID),
		Channel: "-",
		Tag:     ms[max(len(ms)-3, 0):],
		Time:    now.UTC().Format(http.TimeFormat),
		Text:    "---replace---",
	}
	data, _ := json.Marshal(frame)

	return textFrameStart + strings.Replace(string(data), textPlaceholder, m.Body, 1) + textFrameEnd
}

// Only online private channels are listed.
func encodeTextChannelStats(stats []ChannelStats) string {
	out := textChannelStats{Infos: []textChannelInfo{}}
	for _, s := range stats {
		if s.IsOnline && s.IsPrivate {
			out.Infos = append(out.Infos, textChannelInfo{Channel: hex.EncodeToString(s.ID), Subscribers: 1})
		}
	}
	data, _ := json.Marshal(out)
	return string(data)
}
