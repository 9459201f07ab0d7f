package events

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	appevents "gitea.xscloud.ru/xscloud/dbpool/pkg/application/events"
	liberr "gitea.xscloud.ru/xscloud/dbpool/pkg/common/errors"
	commonio "gitea.xscloud.ru/xscloud/dbpool/pkg/common/io"
)

// AMQPDispatcher publishes pool lifecycle events to an exchange in
// confirm mode. It is an optional collaborator: the registry works with
// the nop dispatcher when no ops bus is configured.
type AMQPDispatcher struct {
	appID    string
	exchange string
	channel  *amqp.Channel
	closer   io.Closer
}

var _ appevents.Dispatcher = (*AMQPDispatcher)(nil)

func NewAMQPDispatcher(appID string, connConfig *ConnectionConfig, exchangeConfig *ExchangeConfig) (*AMQPDispatcher, error) {
	if exchangeConfig == nil {
		panic("exchange config is required")
	}

	url := fmt.Sprintf("amqp://%s:%s@%s/", connConfig.User, connConfig.Password, connConfig.Host)

	var conn *amqp.Connection
	err := backoff.Retry(func() error {
		connection, dialErr := amqp.Dial(url)
		conn = connection
		return dialErr
	}, newBackOff(connConfig.ConnectTimeout))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	closer := commonio.NewMultiCloser()

	channel, err := conn.Channel()
	if err != nil {
		return nil, liberr.Join(errors.WithStack(err), conn.Close())
	}
	closer.AddCloser(channel)
	closer.AddCloser(conn)

	kind := exchangeConfig.Kind
	if kind == "" {
		kind = "topic"
	}
	err = channel.ExchangeDeclare(
		exchangeConfig.Name,
		kind,
		exchangeConfig.Durable,
		exchangeConfig.AutoDelete,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, liberr.Join(errors.WithStack(err), closer.Close())
	}

	err = channel.Confirm(false)
	if err != nil {
		return nil, liberr.Join(errors.WithStack(err), closer.Close())
	}

	return &AMQPDispatcher{
		appID:    appID,
		exchange: exchangeConfig.Name,
		channel:  channel,
		closer:   closer,
	}, nil
}

// Dispatch publishes one event, routed by its type, and waits for the
// broker confirmation.
func (d *AMQPDispatcher) Dispatch(ctx context.Context, event appevents.Event) error {
	err := d.validateChannel()
	if err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return errors.WithStack(err)
	}

	correlationID, err := newCorrelationID(d.appID)
	if err != nil {
		return err
	}

	deferredConfirmation, err := d.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		d.exchange,
		event.Type,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			CorrelationId: correlationID,
			Timestamp:     time.Now(),
			Type:          event.Type,
			AppId:         d.appID,
			Body:          body,
		},
	)
	if err != nil {
		return errors.WithStack(err)
	}
	if deferredConfirmation == nil {
		return nil
	}

	publishOk, err := deferredConfirmation.WaitContext(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if !publishOk {
		return stderrors.New("failed to publish lifecycle event")
	}
	return nil
}

func (d *AMQPDispatcher) Close() error {
	return d.closer.Close()
}

func (d *AMQPDispatcher) validateChannel() error {
	if d.channel == nil {
		return stderrors.New("amqp channel is empty")
	}
	if d.channel.IsClosed() {
		return stderrors.New("amqp channel is closed")
	}
	return nil
}

func newCorrelationID(appID string) (string, error) {
	uid, err := uuid.NewV7()
	if err != nil {
		return "", errors.WithStack(err)
	}
	return appID + ":" + uid.String(), nil
}

func newBackOff(timeout time.Duration) backoff.BackOff {
	exponentialBackOff := backoff.NewExponentialBackOff()
	const defaultTimeout = 60 * time.Second
	if timeout != 0 {
		exponentialBackOff.MaxElapsedTime = timeout
	} else {
		exponentialBackOff.MaxElapsedTime = defaultTimeout
	}
	exponentialBackOff.MaxInterval = 5 * time.Second
	return exponentialBackOff
}
