package grpcexchange

import "testing"

func TestJSONCodecRoundTrip(t *testing.T) {
	t.Parallel()

	c := jsonCodec{}
	msg := wireNotification{Kind: kindWriteLockReleased, Path: "/a/b"}

	data, err := c.Marshal(&msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out wireNotification
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if out.Kind != msg.Kind || out.Path != msg.Path {
		t.Fatalf("round trip mismatch: %+v != %+v", out, msg)
	}
	if c.Name() != codecName {
		t.Fatalf("codec name = %q, want %q", c.Name(), codecName)
	}
}
