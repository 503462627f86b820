package screen

import "time"

const (
	DefaultCaptureRate         = 4.0 // frames per second
	DefaultContentRectInterval = 1500 * time.Millisecond

	// Perceptual hash distance above which a frame counts as a new scene
	// and the content rect is re-detected immediately.
	DefaultSceneDistance = 10
)
