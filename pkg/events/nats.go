// Пакет events публикует события изменения ресурсов в NATS
package events

import (
	"encoding/json"

	"github.com/pkg/errors"

	"ResourceAPI/internal/model"
)

// Conn описывает минимальный интерфейс NATS-подключения (*nats.Conn)
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher отправляет события в subject
type Publisher struct {
	conn    Conn
	subject string
}

// NewPublisher связывает подключение и subject
func NewPublisher(conn Conn, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject}
}

// Publish сериализует событие в JSON и отправляет его
func (p *Publisher) Publish(e model.ResourceEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "failed to encode resource event")
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return errors.Wrapf(err, "failed to publish to %s", p.subject)
	}
	return nil
}

// Nop заменяет публикатор для запуска без NATS
type Nop struct{}

func (Nop) Publish(model.ResourceEvent) error { return nil }
