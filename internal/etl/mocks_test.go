package etl

import (
	"context"
	"time"

	"cinesync/apps/etl/internal/movies"
)

type mockStream struct {
	chunks  [][]movies.Record
	pos     int
	nextErr error
	closed  bool
}

func (s *mockStream) Next() ([]movies.Record, error) {
	if s.nextErr != nil {
		return nil, s.nextErr
	}
	if s.pos >= len(s.chunks) {
		return nil, nil
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *mockStream) Close() error {
	s.closed = true
	return nil
}

type mockExtractor struct {
	connectErrs []error
	pending     bool
	pendingErr  error
	stream      *mockStream
	streamErr   error
	watermark   string

	connectCalls int
	streamCalls  int
	committed    []time.Time
}

func (m *mockExtractor) Connect(context.Context) error {
	m.connectCalls++
	if len(m.connectErrs) > 0 {
		err := m.connectErrs[0]
		m.connectErrs = m.connectErrs[1:]
		return err
	}
	return nil
}

func (m *mockExtractor) HasPendingChanges(context.Context) (bool, error) {
	return m.pending, m.pendingErr
}

func (m *mockExtractor) StreamChanges(context.Context) (ChangeStream, error) {
	m.streamCalls++
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	return m.stream, nil
}

func (m *mockExtractor) CommitWatermark(ts time.Time) error {
	m.committed = append(m.committed, ts)
	m.watermark = ts.UTC().Format(time.RFC3339Nano)
	return nil
}

func (m *mockExtractor) Watermark() string {
	if m.watermark == "" {
		return movies.EpochWatermark
	}
	return m.watermark
}

type mockUploader struct {
	alive      bool
	uploadErrs []error

	aliveCalls int
	uploads    [][]byte
	onUpload   func()
	ctxErrs    []error
}

func (u *mockUploader) IsAlive(context.Context) bool {
	u.aliveCalls++
	return u.alive
}

func (u *mockUploader) Upload(ctx context.Context, payload []byte) error {
	if len(u.uploadErrs) > 0 {
		err := u.uploadErrs[0]
		u.uploadErrs = u.uploadErrs[1:]
		if err != nil {
			return err
		}
	}
	u.uploads = append(u.uploads, payload)
	if u.onUpload != nil {
		u.onUpload()
	}
	// Context state observed with the upload still in flight, after any
	// onUpload side effect (e.g. a stop signal landing mid-upload).
	u.ctxErrs = append(u.ctxErrs, ctx.Err())
	return nil
}

type mockNotifier struct {
	records    []int
	watermarks []string
}

func (n *mockNotifier) CycleCompleted(_ context.Context, records int, watermark string) {
	n.records = append(n.records, records)
	n.watermarks = append(n.watermarks, watermark)
}
