package broker

import "testing"

func TestSendTopic(t *testing.T) {
	t.Parallel()

	if got := SendTopic("+1415550199"); got != "send/1415550199" {
		t.Fatalf("SendTopic(+1415550199) = %q", got)
	}
	if got := SendTopic("1234"); got != "send/1234" {
		t.Fatalf("SendTopic(1234) = %q", got)
	}
}
