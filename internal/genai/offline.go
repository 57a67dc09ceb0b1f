package genai

import (
	"context"
	"fmt"
	"hash/fnv"
)

// offlineEchoLimit bounds how much of the user message is echoed back.
const offlineEchoLimit = 100

var offlineReplies = []string{
	"Thank you for your message. I understand you're asking about: %s. This is a mock response for development purposes.",
	"I appreciate your question regarding: %s. I'm here to help with that topic.",
	"That's an interesting point about: %s. Let me provide some assistance with that.",
	"I see you're interested in: %s. I'd be happy to help you with that.",
}

// OfflineClient answers without a network call. The reply is chosen by hashing the
// message so the same input always yields the same output.
type OfflineClient struct{}

// NewOfflineClient creates an OfflineClient.
func NewOfflineClient() *OfflineClient {
	return &OfflineClient{}
}

func (c *OfflineClient) GenerateResponse(ctx context.Context, systemInstruction, userMessage string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	echo := []rune(userMessage)
	if len(echo) > offlineEchoLimit {
		echo = echo[:offlineEchoLimit]
	}
	h := fnv.New32a()
	h.Write([]byte(userMessage))
	return fmt.Sprintf(offlineReplies[h.Sum32()%uint32(len(offlineReplies))], string(echo)), nil
}
