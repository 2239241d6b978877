package pubsub

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/homeserve-payments/pkg/config"
	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
)

func TestResource(t *testing.T) {
	c := &Client{project: "homeserve-dev"}

	cases := []struct {
		kind, name, want string
	}{
		{kindSubscription, "payments-notify", "projects/homeserve-dev/subscriptions/payments-notify"},
		{kindSubscription, "projects/other/subscriptions/x", "projects/other/subscriptions/x"},
		{kindTopic, " hs-payment-events ", "projects/homeserve-dev/topics/hs-payment-events"},
		// a subscription path is not a topic path, so it gets prefixed
		{kindTopic, "projects/other/subscriptions/x", "projects/homeserve-dev/topics/projects/other/subscriptions/x"},
		{kindTopic, "", ""},
	}
	for _, tc := range cases {
		if got := c.resource(tc.kind, tc.name); got != tc.want {
			t.Fatalf("resource(%s, %q) = %q, want %q", tc.kind, tc.name, got, tc.want)
		}
	}

	if got := (&Client{}).resource(kindTopic, "t"); got != "" {
		t.Fatalf("expected empty name without project, got %q", got)
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if c.Publisher("topic") != nil || c.OrderedPublisher("topic") != nil {
		t.Fatal("nil client should return nil publisher")
	}
	if c.Subscription("sub") != nil || c.NotificationSubscription() != nil {
		t.Fatal("nil client should return nil subscriber")
	}
	if err := c.Ping(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{ProjectID: "  "}, config.PubSubConfig{}, nil)
	if !errors.Is(err, ErrProjectIDRequired) {
		t.Fatalf("expected ErrProjectIDRequired, got %v", err)
	}
}

func TestMissingClassifiesNotFound(t *testing.T) {
	err := missing(kindSubscription, "notify", status.Error(codes.NotFound, "gone"))
	var typed *pkgerrors.Error
	if !errors.As(err, &typed) || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if got := err.Error(); !strings.Contains(got, `subscription "notify" does not exist`) {
		t.Fatalf("unexpected message %q", got)
	}

	err = missing(kindTopic, "events", status.Error(codes.PermissionDenied, "nope"))
	if !strings.Contains(err.Error(), `checking pubsub topic "events"`) {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestClientOptionsPrecedence(t *testing.T) {
	if opts := clientOptions(config.GCPConfig{ProjectID: "p"}); len(opts) != 0 {
		t.Fatalf("expected default credentials, got %d options", len(opts))
	}
	if opts := clientOptions(config.GCPConfig{CredentialsJSON: "{}", ApplicationCredentials: "/tmp/key.json"}); len(opts) != 1 {
		t.Fatalf("expected a single credentials option, got %d", len(opts))
	}
	if opts := clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/key.json"}); len(opts) != 1 {
		t.Fatalf("expected file credentials option, got %d", len(opts))
	}
}
