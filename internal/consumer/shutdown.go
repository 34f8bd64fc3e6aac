package consumer

import (
	"context"

	"github.com/pkg/errors"
)

// Shutdown останавливает приём сообщений и только потом останавливает Run.
// drain запускает дренаж подписки (например, nats.Conn.Drain), drained закрывается,
// когда последний колбэк завершён. Если ctx истекает раньше, Run всё равно
// останавливается и сбрасывает то, что успело попасть в буфер
func Shutdown(ctx context.Context, drain func() error, drained <-chan struct{}, stopRun context.CancelFunc, runDone <-chan struct{}) error {
	var err error
	if derr := drain(); derr != nil {
		err = errors.Wrap(derr, "failed to drain subscription")
	} else {
		// ждём завершения дренажа, а не только его запуска
		select {
		case <-drained:
		case <-ctx.Done():
			err = errors.Wrap(ctx.Err(), "subscription drain did not finish in time")
		}
	}
	stopRun()
	<-runDone
	return err
}
