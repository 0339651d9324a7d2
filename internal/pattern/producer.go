package pattern

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"surface-recorder/internal/recorder"
)

// Notifier is called after each picture is drawn. It reports whether a
// sample reached the container.
type Notifier func() (bool, error)

// Producer paces pictures from a Generator into a surface at a fixed rate
type Producer struct {
	gen    *Generator
	period time.Duration
	log    logrus.FieldLogger
}

// NewProducer creates a producer drawing frameRate pictures per second
func NewProducer(gen *Generator, frameRate int, log logrus.FieldLogger) *Producer {
	period := time.Second
	if frameRate > 0 {
		period = time.Second / time.Duration(frameRate)
	}
	return &Producer{gen: gen, period: period, log: log.WithField("component", "pattern")}
}

// Run draws pictures into surface and calls notify after each one, until
// count pictures were drawn or ctx is done. A count of zero or less means
// no limit. It returns the number of pictures drawn and how many of them
// were followed by a muxed sample.
func (p *Producer) Run(ctx context.Context, surface recorder.Surface, notify Notifier, count int) (drawn, muxed int, err error) {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for count <= 0 || drawn < count {
		if err := surface.WriteFrame(p.gen.Render(uint64(drawn))); err != nil {
			return drawn, muxed, errors.Wrapf(err, "pattern: draw frame %d", drawn)
		}
		drawn++

		wrote, err := notify()
		if err != nil {
			return drawn, muxed, errors.Wrapf(err, "pattern: notify frame %d", drawn-1)
		}
		if wrote {
			muxed++
		}

		if count > 0 && drawn == count {
			break
		}
		select {
		case <-ctx.Done():
			p.log.WithField("frames", drawn).Debug("producer cancelled")
			return drawn, muxed, nil
		case <-ticker.C:
		}
	}
	p.log.WithFields(logrus.Fields{"frames": drawn, "muxed": muxed}).Debug("producer finished")
	return drawn, muxed, nil
}
