package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/docker/docker/pkg/jsonmessage"
)

// ProgressStream lazily decodes the JSON progress records of a build
// response. It is finite and cannot be restarted; once Next returns an error
// every later call returns the same error.
type ProgressStream struct {
	body      io.ReadCloser
	decoder   *json.Decoder
	err       error
	closeOnce sync.Once
	closeErr  error
}

func NewProgressStream(body io.ReadCloser) *ProgressStream {
	return &ProgressStream{body: body, decoder: json.NewDecoder(body)}
}

// Next returns the next record, or io.EOF when the runtime finished the stream.
func (s *ProgressStream) Next() (jsonmessage.JSONMessage, error) {
	if s.err != nil {
		return jsonmessage.JSONMessage{}, s.err
	}
	var msg jsonmessage.JSONMessage
	if err := s.decoder.Decode(&msg); err != nil {
		if !errors.Is(err, io.EOF) {
			err = fmt.Errorf("decode build progress: %w", err)
		}
		s.err = err
		return jsonmessage.JSONMessage{}, err
	}
	return msg, nil
}

// Close releases the upstream body. It is safe to call more than once.
func (s *ProgressStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
