package bus

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func recv(t *testing.T, s *Subscription) *Message {
	t.Helper()
	select {
	case m, ok := <-s.Channel():
		if !ok {
			t.Fatal("subscription closed")
		}
		return m
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("nothing delivered on %v", s.Topic())
		return nil
	}
}

func quiet(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case m := <-s.Channel():
		t.Fatalf("%v: unexpected %v = %#v", s.Topic(), m.Topic, m.Payload)
	case <-time.After(40 * time.Millisecond):
	}
}

// collect reads n messages and returns their payloads sorted.
func collect(t *testing.T, s *Subscription, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p, ok := recv(t, s).Payload.(string)
		if !ok {
			t.Fatal("non-string payload")
		}
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func TestPublish_Matching(t *testing.T) {
	pub := T("sensor", "sht30", "value")
	cases := []struct {
		name    string
		pattern Topic
		hit     bool
	}{
		{"exact", T("sensor", "sht30", "value"), true},
		{"one level", T("sensor", WildOne, "value"), true},
		{"two singles", T(WildOne, WildOne, "value"), true},
		{"rest", T("sensor", WildRest), true},
		{"rest at root", T(WildRest), true},
		{"rest after full topic", T("sensor", "sht30", "value", WildRest), true},
		{"other leaf", T("sensor", WildOne, "status"), false},
		{"too short", T("sensor", "sht30"), false},
		{"too long", T("sensor", "sht30", "value", "x"), false},
		{"single needs a level", T("sensor", WildOne), false},
	}
	b := NewBus(4)
	c := b.NewConnection("t")
	subs := make([]*Subscription, len(cases))
	for i, tc := range cases {
		subs[i] = c.Subscribe(tc.pattern)
	}
	c.Publish(c.NewMessage(pub, "21.50", false))

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !tc.hit {
				quiet(t, subs[i])
				return
			}
			if m := recv(t, subs[i]); m.Payload != "21.50" {
				t.Fatalf("payload %#v", m.Payload)
			}
		})
	}
}

func TestRetained_ReplayOnSubscribe(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("t")
	c.Publish(c.NewMessage(T("config", "sensor"), "cfg", true))
	c.Publish(c.NewMessage(T("sensor", "a", "info"), "ia", true))
	c.Publish(c.NewMessage(T("sensor", "b", "info"), "ib", true))
	c.Publish(c.NewMessage(T("sensor", "a", "status"), "sa", true))
	c.Publish(c.NewMessage(T("sensor", "a", "value"), "transient", false))

	cases := []struct {
		pattern Topic
		want    []string
	}{
		{T("config", "sensor"), []string{"cfg"}},
		{T("sensor", WildOne, "info"), []string{"ia", "ib"}},
		{T("sensor", "a", WildRest), []string{"ia", "sa"}},
		{T(WildRest), []string{"cfg", "ia", "ib", "sa"}},
	}
	for _, tc := range cases {
		s := c.Subscribe(tc.pattern)
		if got := collect(t, s, len(tc.want)); !slices.Equal(got, tc.want) {
			t.Fatalf("%v: got %v want %v", tc.pattern, got, tc.want)
		}
		quiet(t, s)
	}
}

func TestRetained_ReplaceAndClear(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("t")
	topic := T("sensor", "sht30", "status")

	c.Publish(c.NewMessage(topic, "down", true))
	c.Publish(c.NewMessage(topic, "up", true))
	s := c.Subscribe(topic)
	if m := recv(t, s); m.Payload != "up" {
		t.Fatalf("retained = %#v, want latest", m.Payload)
	}
	c.Unsubscribe(s)

	c.Publish(c.NewMessage(topic, nil, true))
	s = c.Subscribe(topic)
	quiet(t, s)
}

func TestQueueFull_DropsOldest(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("t")
	s := c.Subscribe(T("mesh", "0001", WildOne))
	for _, p := range []string{"f1", "f2", "f3"} {
		c.Publish(c.NewMessage(T("mesh", "0001", "00d38888"), p, false))
	}
	if a, z := recv(t, s).Payload, recv(t, s).Payload; a != "f2" || z != "f3" {
		t.Fatalf("got %v %v, want f2 f3", a, z)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("t")
	s := c.Subscribe(T("sensor", WildOne, "event", WildOne))
	c.Unsubscribe(s)
	c.Unsubscribe(s)
	s.Unsubscribe()

	c.Publish(c.NewMessage(T("sensor", "x", "event", "reset"), "r", false))
	if _, ok := <-s.Channel(); ok {
		t.Fatal("channel still open")
	}
	if len(b.root.children) != 0 {
		t.Fatalf("trie not pruned: %v", b.root.children)
	}
}

func TestDisconnect_ClosesAll(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("t")
	s1 := c.Subscribe(T("a"))
	s2 := c.Subscribe(T("b", WildRest))
	c.Disconnect()
	for _, s := range []*Subscription{s1, s2} {
		if _, ok := <-s.Channel(); ok {
			t.Fatalf("%v still open", s.Topic())
		}
	}
}

func TestRequestWait(t *testing.T) {
	b := NewBus(4)
	srv := b.NewConnection("srv")
	cli := b.NewConnection("cli")

	reqs := srv.Subscribe(T("telemetry", "get"))
	go func() {
		for m := range reqs.Channel() {
			srv.Reply(m, "snap:"+m.Payload.(string), false)
		}
	}()
	t.Cleanup(func() { srv.Unsubscribe(reqs) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req := cli.NewMessage(T("telemetry", "get"), "sht30", false)
	rep, err := cli.RequestWait(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Payload != "snap:sht30" || !slices.Equal(rep.Topic, req.ReplyTo) {
		t.Fatalf("reply %v %#v", rep.Topic, rep.Payload)
	}
	if !req.CanReply() || req.ReplyTo.At(1) != "cli" {
		t.Fatalf("ReplyTo = %v", req.ReplyTo)
	}
}

func TestRequestWait_NoResponder(t *testing.T) {
	b := NewBus(4)
	cli := b.NewConnection("cli")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := cli.RequestWait(ctx, cli.NewMessage(T("telemetry", "get"), "none", false))
	if !errors.Is(err, ErrNoReply) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestReply_WithoutReplyTo(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("t")
	all := c.Subscribe(T(WildRest))
	c.Reply(c.NewMessage(T("x"), nil, false), "ignored", false)
	quiet(t, all)
}

func TestTopic(t *testing.T) {
	base := make(Topic, 0, 8)
	base = append(base, "sensor", "sht30")
	v, s := base.Append("value"), base.Append("status")
	if v.At(2) != "value" || s.At(2) != "status" {
		t.Fatalf("aliased: %v %v", v, s)
	}
	if base.Len() != 2 || base.At(-1) != nil || base.At(2) != nil {
		t.Fatalf("base = %v", base)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("T accepted a slice token")
		}
	}()
	T("sensor", []byte{1})
}
