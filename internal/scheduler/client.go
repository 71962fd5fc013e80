package scheduler

import (
	"context"
	"strings"

	"leadcrm_backend/platform/cache"
	"leadcrm_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/rotisserie/eris"
)

const defaultQueue = "default"

// Client enqueues jobs for the worker.
type Client struct {
	client *asynq.Client
	queue  string
}

// NewClient connects to the asynq Redis.
func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}
	return &Client{client: asynq.NewClient(opt), queue: queueName(cfg)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Enqueue schedules job name to run now.
func (c *Client) Enqueue(ctx context.Context, name string) (string, error) {
	task, err := NewJobTask(name, "")
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	if err != nil {
		return "", eris.Wrapf(err, "enqueue %s", name)
	}
	return info.ID, nil
}

func queueName(cfg config.SchedulerConfig) string {
	if q := strings.TrimSpace(cfg.GetAsynqQueueName()); q != "" {
		return q
	}
	return defaultQueue
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	if strings.TrimSpace(redisURL) == "" {
		return asynq.RedisClientOpt{}, eris.New("redis url not configured")
	}
	opt, err := cache.ParseOptions(redisURL, tlsInsecure)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
