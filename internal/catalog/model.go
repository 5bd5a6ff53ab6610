package catalog

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Models lists every table of the capture catalog, in migration order.
var Models = []interface{}{
	&CaptureSession{},
	&ImagePair{},
	&RecordedPath{},
}

// CaptureSession is one saved session folder
type CaptureSession struct {
	gorm.Model
	Folder       string      `json:"folder" gorm:"size:512;index"`
	Name         string      `json:"name" gorm:"size:127"`
	MapName      string      `json:"map" gorm:"size:127;index"`
	AnnotatedMap string      `json:"annotatedMap" gorm:"size:127"`
	CarModel     string      `json:"carModel" gorm:"size:127;index"`
	StartedAt    time.Time   `json:"startedAt"`
	PairCount    int         `json:"pairCount"`
	Pairs        []ImagePair `json:"pairs" gorm:"foreignKey:SessionID"`
}

func (*CaptureSession) TableName() string {
	return "capture_sessions"
}

// ImagePair is a base/annotated image pair of a session. Location and Rig
// hold the pose and camera the pair was captured with.
type ImagePair struct {
	ID            uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID     uint           `json:"sessionId" gorm:"index:idx_image_pair_session_id"`
	Session       CaptureSession `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Name          string         `json:"name" gorm:"size:32"`
	LocationIndex int            `json:"locationIndex"`
	CameraIndex   int            `json:"cameraIndex"`
	PosX          float64        `json:"posX"`
	PosY          float64        `json:"posY"`
	PosZ          float64        `json:"posZ"`
	Location      datatypes.JSON `json:"location"`
	Rig           datatypes.JSON `json:"rig"`
	BasePath      string         `json:"basePath" gorm:"size:512"`
	AnnotatedPath string         `json:"annotatedPath" gorm:"size:512"`
}

func (*ImagePair) TableName() string {
	return "image_pairs"
}

// RecordedPath is a driven path stored as WKT LINESTRING Z
type RecordedPath struct {
	ID         uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time       time.Time `json:"time" gorm:"index:idx_recorded_path_time"`
	MapName    string    `json:"map" gorm:"size:127;index"`
	PointCount int       `json:"pointCount"`
	LengthM    float64   `json:"length"`
	Path       string    `json:"path" gorm:"type:text"`
}

func (*RecordedPath) TableName() string {
	return "recorded_paths"
}
