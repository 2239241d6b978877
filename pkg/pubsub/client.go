package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/homeserve-payments/pkg/config"
	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
	"github.com/angelmondragon/homeserve-payments/pkg/logger"
)

const (
	kindTopic        = "topics"
	kindSubscription = "subscriptions"
)

var (
	ErrProjectIDRequired = errors.New("gcp project id is required")
	ErrNotInitialized    = errors.New("pubsub client not initialized")
)

// Client owns the Pub/Sub connection shared by the outbox relay and the
// notification worker.
type Client struct {
	ps      *pubsub.Client
	project string
	topic   string
	sub     string
}

// NewClient dials Pub/Sub and fails fast when the payments topic or the
// notification subscription is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, ErrProjectIDRequired
	}

	ps, err := pubsub.NewClient(ctx, project, clientOptions(gcp)...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating pubsub client")
	}

	c := &Client{
		ps:      ps,
		project: project,
		topic:   strings.TrimSpace(cfg.PaymentsTopic),
		sub:     strings.TrimSpace(cfg.NotificationSubscription),
	}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project":      project,
			"topic":        c.topic,
			"subscription": c.sub,
		}), "pubsub client initialized")
	}
	return c, nil
}

// clientOptions prefers inline credentials, then a credentials file, then ADC.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// Ping checks that the configured topic and subscription both exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return ErrNotInitialized
	}
	if c.topic != "" {
		_, err := c.ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
			Topic: c.resource(kindTopic, c.topic),
		})
		if err != nil {
			return missing(kindTopic, c.topic, err)
		}
	}
	if c.sub == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "pubsub subscription name is required")
	}
	_, err := c.ps.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
		Subscription: c.resource(kindSubscription, c.sub),
	})
	if err != nil {
		return missing(kindSubscription, c.sub, err)
	}
	return nil
}

func missing(kind, name string, err error) error {
	if status.Code(err) == codes.NotFound {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("pubsub %s %q does not exist", strings.TrimSuffix(kind, "s"), name))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("checking pubsub %s %q", strings.TrimSuffix(kind, "s"), name))
}

// Subscription returns a subscriber for an ID or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.ps == nil {
		return nil
	}
	full := c.resource(kindSubscription, name)
	if full == "" {
		return nil
	}
	return c.ps.Subscriber(full)
}

// NotificationSubscription feeds the payment notification worker.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscription(c.sub)
}

// Publisher returns a publisher for an ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.ps == nil {
		return nil
	}
	full := c.resource(kindTopic, name)
	if full == "" {
		return nil
	}
	return c.ps.Publisher(full)
}

// OrderedPublisher delivers messages sharing an ordering key in publish order.
func (c *Client) OrderedPublisher(name string) *pubsub.Publisher {
	p := c.Publisher(name)
	if p != nil {
		p.EnableMessageOrdering = true
	}
	return p
}

func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	return c.ps.Close()
}

// resource expands a bare ID into projects/<project>/<kind>/<id>. Names that
// are already fully qualified for kind pass through untouched.
func (c *Client) resource(kind, name string) string {
	if c == nil {
		return ""
	}
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	if c.project == "" {
		return ""
	}
	return "projects/" + c.project + "/" + kind + "/" + n
}
