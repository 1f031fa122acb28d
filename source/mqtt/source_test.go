package mqtt

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	mqttserver "github.com/mochi-co/mqtt/server"
	"github.com/mochi-co/mqtt/server/listeners"
	"github.com/rs/zerolog"

	"github.com/timzifer/viewstate/config"
	"github.com/timzifer/viewstate/engine"
	"github.com/timzifer/viewstate/registry"
	"github.com/timzifer/viewstate/translator"
)

func TestSourceFeedsEngine(t *testing.T) {
	brokerURL, shutdown := startMockBroker(t)
	defer shutdown()

	src, err := New(config.MQTTConfig{
		Broker:        brokerURL,
		ClientID:      "viewstate",
		Topics:        []string{"todos/#"},
		TypeFromTopic: true,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	eng, err := engine.New(engine.WithRules(registry.Rule{
		Start: "LOAD_TODOS",
		Reset: []string{"LOAD_TODOS_SUCCESS"},
		Error: []string{"LOAD_TODOS_FAILURE"},
	}))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan translator.Event, 8)
	go func() { _ = src.Run(ctx, events) }()
	go func() { _ = eng.Run(ctx, events) }()

	select {
	case <-src.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("source did not subscribe")
	}

	publisher := connectClient(t, brokerURL, "publisher")
	t.Cleanup(func() { publisher.Disconnect(250) })

	publish(t, publisher, "todos/LOAD_TODOS", "")
	waitFor(t, 5*time.Second, func() bool {
		return eng.Reader().StatusOf("LOAD_TODOS").IsLoading()
	})

	publish(t, publisher, "todos/anything", `{"type":"LOAD_TODOS_FAILURE","error":"offline"}`)
	waitFor(t, 5*time.Second, func() bool {
		return eng.Reader().StatusOf("LOAD_TODOS").Payload() == "offline"
	})
}

func TestNewValidatesSettings(t *testing.T) {
	if _, err := New(config.MQTTConfig{Topics: []string{"a"}}, zerolog.Nop()); err == nil {
		t.Fatal("expected missing broker error")
	}
	if _, err := New(config.MQTTConfig{Broker: "tcp://localhost:1883"}, zerolog.Nop()); err == nil {
		t.Fatal("expected missing topic error")
	}
	if _, err := New(config.MQTTConfig{Broker: "tcp://localhost:1883", Topics: []string{"a"}, QoS: 3}, zerolog.Nop()); err == nil {
		t.Fatal("expected qos error")
	}
}

func TestDecode(t *testing.T) {
	rec, err := Decode("todos/LOAD", []byte(`{"type":"SAVE"}`), true)
	if err != nil || rec.Type() != "SAVE" {
		t.Fatalf("explicit type: %v %v", rec, err)
	}

	rec, err = Decode("todos/LOAD", nil, true)
	if err != nil || rec.Type() != "LOAD" {
		t.Fatalf("type from topic: %v %v", rec, err)
	}

	rec, err = Decode("todos/FAIL", []byte(`{"error":"boom"}`), true)
	if err != nil || rec.Type() != "FAIL" || rec.ViewStateError() != "boom" {
		t.Fatalf("fields kept: %v %v", rec, err)
	}

	if _, err := Decode("todos/LOAD", nil, false); err == nil {
		t.Fatal("expected error without topic fallback")
	}
	if _, err := Decode("todos/LOAD", []byte(`{not json`), true); err == nil {
		t.Fatal("expected invalid json error")
	}
}

func publish(t *testing.T, client mqtt.Client, topic, payload string) {
	t.Helper()
	token := client.Publish(topic, 0, false, []byte(payload))
	if !token.WaitTimeout(5 * time.Second) {
		t.Fatal("publish timeout")
	}
	if err := token.Error(); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

func startMockBroker(t *testing.T) (string, func()) {
	t.Helper()

	port := freePort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	server := mqttserver.NewServer(nil)
	tcp := listeners.NewTCP("test", addr)

	if err := server.AddListener(tcp, nil); err != nil {
		t.Fatalf("add listener: %v", err)
	}
	if err := server.Serve(); err != nil {
		t.Fatalf("serve: %v", err)
	}

	if err := waitForBroker(addr, 5*time.Second); err != nil {
		t.Fatalf("wait for broker: %v", err)
	}

	return "tcp://" + addr, func() {
		_ = server.Close()
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func waitForBroker(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("broker at %s did not start", addr)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if cond() {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("condition not satisfied within %s", timeout)
		case <-ticker.C:
		}
	}
}

func connectClient(t *testing.T, brokerURL, clientID string) mqtt.Client {
	t.Helper()
	opts := mqtt.NewClientOptions().AddBroker(brokerURL).SetClientID(clientID)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		t.Fatalf("connect timeout")
	}
	if err := token.Error(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	return client
}
