// pkg/core/session.go
package core

import "time"

// SessionInfo describes one saved capture session folder.
type SessionInfo struct {
	ID           uint      `json:"id"`
	Folder       string    `json:"folder"`
	Map          string    `json:"map"`
	AnnotatedMap string    `json:"annotatedMap"`
	CarModel     string    `json:"carModel"`
	StartedAt    time.Time `json:"startedAt"`
	PairCount    int       `json:"pairCount"`
}

// PairRecord is a saved base/annotated image pair within a session.
type PairRecord struct {
	SessionID     uint     `json:"sessionId"`
	Name          string   `json:"name"`
	LocationIndex int      `json:"locationIndex"`
	CameraIndex   int      `json:"cameraIndex"`
	Location      Pose     `json:"location"`
	Rig           RigState `json:"rig"`
	BasePath      string   `json:"basePath"`
	AnnotatedPath string   `json:"annotatedPath"`
}

// UploadMetadata is sent alongside an uploaded session archive.
type UploadMetadata struct {
	SessionName  string
	Map          string
	AnnotatedMap string
	CarModel     string
	PairCount    int
}
