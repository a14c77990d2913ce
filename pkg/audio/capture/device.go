// Package capture provides microphone input and the pipeline that slices the
// raw sample stream into fixed-size blocks for the live session.
package capture

import "github.com/voxtrace/voxtrace/pkg/audio"

// Device is an audio input device delivering frames of float32 samples in
// [-1, 1].
//
// onFrame is invoked from the device's real-time thread with a frame whose
// sample slice is only valid for the duration of the call; callers that
// retain samples must copy them.
type Device interface {
	// Start begins capture, invoking onFrame for each period of input.
	Start(onFrame func(frame audio.Frame)) error

	// Stop halts capture and releases the device. Safe to call more than
	// once; after Stop returns no further onFrame calls are made.
	Stop() error
}
