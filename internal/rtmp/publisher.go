// Package rtmp publishes the recording live to an RTMP server instead of a
// file.
package rtmp

import (
	"bytes"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/yutopp/go-rtmp"
	"github.com/yutopp/go-rtmp/message"

	"surface-recorder/internal/flv"
	"surface-recorder/internal/models"
)

const (
	chunkSize = 4096

	chunkStreamData  = 4
	chunkStreamVideo = 6

	flashVer = "FMLE/3.0 (compatible; surface-recorder)"
)

var (
	errNotStarted     = errors.New("rtmp: publisher not started")
	errAlreadyStarted = errors.New("rtmp: publisher already started")
	errTrackExists    = errors.New("rtmp: only one video track is supported")
)

// Publisher sends the video track to an RTMP server as FLV video messages
type Publisher struct {
	info *models.ConnectionInfo
	log  logrus.FieldLogger

	mu          sync.Mutex
	conn        *rtmp.ClientConn
	stream      *rtmp.Stream
	format      *models.OutputFormat
	orientation int
	started     bool
	stopped     bool
	released    bool
	lastTS      uint32
	messages    int
}

// Dial connects to the server named by rawURL and performs the connect
// handshake. Publishing starts with Start.
func Dial(rawURL, pattern string, log logrus.FieldLogger) (*Publisher, error) {
	info, err := ParseURL(rawURL, pattern)
	if err != nil {
		return nil, err
	}
	log = log.WithFields(logrus.Fields{"container": "rtmp", "app": info.App, "stream": info.StreamName})

	conn, err := rtmp.Dial("rtmp", info.Addr, &rtmp.ConnConfig{
		Logger: log,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "rtmp: dial %s", info.Addr)
	}

	if err := conn.Connect(&message.NetConnectionConnect{
		Command: message.NetConnectionConnectCommand{
			App:      info.App,
			Type:     "nonprivate",
			FlashVer: flashVer,
			TCURL:    info.TCURL,
		},
	}); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "rtmp: connect to %s", info.TCURL)
	}

	log.WithFields(logrus.Fields{"tcurl": info.TCURL, "vars": info.GetVars()}).Info("connected to RTMP server")
	return &Publisher{info: info, log: log, conn: conn}, nil
}

// Info returns the resolved connection parameters
func (p *Publisher) Info() *models.ConnectionInfo {
	return p.info
}

// AddTrack registers the video track
func (p *Publisher) AddTrack(format models.OutputFormat) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.started:
		return -1, errAlreadyStarted
	case p.format != nil:
		return -1, errTrackExists
	case format.MIMEType != models.MIMETypeAVC:
		return -1, errors.Errorf("rtmp: unsupported mime type %q", format.MIMEType)
	case !format.HasParameterSets():
		return -1, errors.New("rtmp: format carries no SPS/PPS")
	}
	p.format = &format
	return 0, nil
}

// SetOrientationHint keeps the rotation for the stream metadata
func (p *Publisher) SetOrientationHint(degrees int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errAlreadyStarted
	}
	p.orientation = degrees
	return nil
}

// Start opens a stream, publishes it, and sends the metadata and the
// sequence header
func (p *Publisher) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errAlreadyStarted
	}
	if p.format == nil {
		return errors.New("rtmp: no track added")
	}
	if p.released {
		return errors.New("rtmp: publisher released")
	}

	meta, err := flv.Metadata(*p.format, p.orientation)
	if err != nil {
		return err
	}
	seq, err := flv.SequenceHeader(*p.format)
	if err != nil {
		return err
	}

	stream, err := p.conn.CreateStream(nil, chunkSize)
	if err != nil {
		return errors.Wrap(err, "rtmp: create stream")
	}
	if err := stream.Publish(&message.NetStreamPublish{
		PublishingName: p.info.StreamName,
		PublishingType: "live",
	}); err != nil {
		_ = stream.Close()
		return errors.Wrap(err, "rtmp: publish")
	}
	p.stream = stream

	if err := stream.Write(chunkStreamData, 0, &message.DataMessage{
		Name:     "@setDataFrame",
		Encoding: message.EncodingTypeAMF0,
		Body:     bytes.NewReader(meta),
	}); err != nil {
		return errors.Wrap(err, "rtmp: send metadata")
	}
	if err := p.writeVideo(0, seq); err != nil {
		return errors.Wrap(err, "rtmp: send sequence header")
	}

	p.started = true
	p.log.Info("publishing started")
	return nil
}

func (p *Publisher) writeVideo(ts uint32, body []byte) error {
	return p.stream.Write(chunkStreamVideo, ts, &message.VideoMessage{
		Payload: bytes.NewReader(body),
	})
}

// WriteSampleData sends one access unit given in Annex-B form
func (p *Publisher) WriteSampleData(track int, data []byte, info models.BufferInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.stopped {
		return errNotStarted
	}
	if track != 0 {
		return errors.Errorf("rtmp: unknown track %d", track)
	}

	body, err := flv.PictureBody(data, info.IsKeyFrame())
	if err != nil {
		return err
	}
	if body == nil {
		return nil
	}
	ts := flv.Timestamp(info.PresentationTimeUs)
	if err := p.writeVideo(ts, body); err != nil {
		return errors.Wrap(err, "rtmp: send picture")
	}
	p.lastTS = ts
	p.messages++
	return nil
}

// Stop sends the end of sequence and closes the stream
func (p *Publisher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return errNotStarted
	}
	if p.stopped {
		return nil
	}
	p.stopped = true

	err := p.writeVideo(p.lastTS, flv.EndOfSequence())
	if cerr := p.stream.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrap(err, "rtmp: close stream")
	}
	p.log.WithField("messages", p.messages).Info("publishing stopped")
	return nil
}

// Release closes the connection. Further calls do nothing.
func (p *Publisher) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil
	}
	p.released = true
	return errors.Wrap(p.conn.Close(), "rtmp: close connection")
}
