package broker

import "github.com/smskit/sim-gateway/internal/util"

const sendTopicPrefix = "send/"

// SendTopic returns the per-SIM outbound topic for a normalized +digits
// number, e.g. "send/1415550199". The bridge subscribes per SIM.
func SendTopic(simNumber string) string {
	return sendTopicPrefix + util.NumberDigits(simNumber)
}
