package activity

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	routingKey     = "integration.activity"
	reconnectDelay = 5 * time.Second
)

// Publisher emits activity events to a RabbitMQ exchange. It keeps the
// connection alive in the background and drops events while the broker is
// unreachable rather than blocking action runs.
type Publisher struct {
	url      string
	exchange string
	queue    string
	log      zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
	done chan struct{}
}

func NewPublisher(url, exchange, queue string, logger zerolog.Logger) *Publisher {
	p := &Publisher{
		url:      url,
		exchange: exchange,
		queue:    queue,
		log:      logger.With().Str("module", "activity.publisher").Logger(),
		done:     make(chan struct{}),
	}
	go p.maintain()
	return p
}

// maintain dials the broker and re-dials whenever the connection drops,
// until Close is called.
func (p *Publisher) maintain() {
	for {
		// Close and a broker-side drop can be signalled at the same time;
		// once done is closed the loop must not dial again.
		select {
		case <-p.done:
			return
		default:
		}

		closed, err := p.connect()
		if err != nil {
			p.log.Warn().Err(err).Msg("broker connection failed, retrying")
			select {
			case <-p.done:
				return
			case <-time.After(reconnectDelay):
				continue
			}
		}

		select {
		case <-p.done:
			p.teardown()
			return
		case err := <-closed:
			p.teardown()
			p.log.Warn().Err(err).Msg("broker connection lost, reconnecting")
		}
	}
}

func (p *Publisher) connect() (chan *amqp.Error, error) {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(p.exchange, "direct", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.QueueBind(p.queue, routingKey, p.exchange, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	closed := make(chan *amqp.Error, 1)
	conn.NotifyClose(closed)

	p.mu.Lock()
	p.conn = conn
	p.ch = ch
	p.mu.Unlock()

	p.log.Info().Str("exchange", p.exchange).Msg("connected to broker")
	return closed, nil
}

// teardown closes the current connection, if any, and forgets it. Closing
// a connection the broker already dropped is a no-op.
func (p *Publisher) teardown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
		p.ch = nil
	}
}

func (p *Publisher) Emit(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Msg("encode activity event")
		return
	}

	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()
	if ch == nil {
		p.log.Warn().Str("title", event.Title).Msg("broker unavailable, activity event dropped")
		return
	}

	err = ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		p.log.Warn().Err(err).Str("title", event.Title).Msg("publish activity event")
	}
}

// Close stops the reconnect loop and tears down the connection.
func (p *Publisher) Close() {
	close(p.done)
	p.teardown()
}
