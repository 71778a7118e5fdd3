package types

import "github.com/google/uuid"

// ObjectKind discriminates the scene object union.
type ObjectKind string

const (
	KindModel  ObjectKind = "model"
	KindLight  ObjectKind = "light"
	KindCamera ObjectKind = "camera"
)

// Scene object defaults. Light and camera placements match the editor's
// out-of-the-box scene.
const (
	DefaultLightIntensity  float32 = 1.0
	DefaultLightColor              = "#ffffff"
	DefaultCameraFOV       float32 = 50
	DefaultObjectVisible           = true
)

// DefaultLightPosition returns the spawn position for new lights.
func DefaultLightPosition() Vec3 { return V3(2, 5, 2) }

// DefaultCameraPosition returns the spawn position for new scene cameras.
func DefaultCameraPosition() Vec3 { return V3(0, 2, 5) }

// LightProps carries the Light-kind payload.
type LightProps struct {
	Intensity  float32 `json:"intensity"`
	Color      string  `json:"color"`
	CastShadow bool    `json:"castShadow"`
}

// CameraProps carries the Camera-kind payload.
type CameraProps struct {
	FOV float32 `json:"fov"`
}

// SceneObject is a placed entity: a model instance, a light, or a camera.
// Exactly one of URL / Light / Camera is populated, matching Kind; Transform
// is always present. Build instances through the New*Object constructors so
// the union invariant holds.
type SceneObject struct {
	ID        string       `json:"id"`
	Kind      ObjectKind   `json:"type"`
	Name      string       `json:"name"`
	URL       string       `json:"url,omitempty"`
	Transform Transform    `json:"transform"`
	Visible   bool         `json:"visible"`
	Locked    bool         `json:"locked"`
	Light     *LightProps  `json:"lightProps,omitempty"`
	Camera    *CameraProps `json:"cameraProps,omitempty"`
}

// NewModelObject builds a Model scene object at the origin.
func NewModelObject(url, name string) SceneObject {
	if name == "" {
		name = "Model"
	}
	return SceneObject{
		ID:        uuid.New().String(),
		Kind:      KindModel,
		Name:      name,
		URL:       url,
		Transform: IdentityTransform(),
		Visible:   DefaultObjectVisible,
	}
}

// NewLightObject builds a Light scene object with the editor defaults.
func NewLightObject() SceneObject {
	return SceneObject{
		ID:   uuid.New().String(),
		Kind: KindLight,
		Name: "Light",
		Transform: Transform{
			Position: DefaultLightPosition(),
			Scale:    V3(1, 1, 1),
		},
		Visible: DefaultObjectVisible,
		Light: &LightProps{
			Intensity:  DefaultLightIntensity,
			Color:      DefaultLightColor,
			CastShadow: true,
		},
	}
}

// NewCameraObject builds a Camera scene object with the editor defaults.
func NewCameraObject() SceneObject {
	return SceneObject{
		ID:   uuid.New().String(),
		Kind: KindCamera,
		Name: "Camera",
		Transform: Transform{
			Position: DefaultCameraPosition(),
			Scale:    V3(1, 1, 1),
		},
		Visible: DefaultObjectVisible,
		Camera:  &CameraProps{FOV: DefaultCameraFOV},
	}
}

// Clone returns a deep copy: kind payloads are duplicated so the caller can
// never mutate the original through shared pointers.
func (o SceneObject) Clone() SceneObject {
	if o.Light != nil {
		l := *o.Light
		o.Light = &l
	}
	if o.Camera != nil {
		c := *o.Camera
		o.Camera = &c
	}
	return o
}

// Validate checks the union invariant: exactly one kind payload, matching Kind.
func (o *SceneObject) Validate() error {
	if o.ID == "" {
		return NewError(ErrInvalidRequest, "scene object id is required")
	}
	populated := 0
	if o.URL != "" {
		populated++
	}
	if o.Light != nil {
		populated++
	}
	if o.Camera != nil {
		populated++
	}
	if populated != 1 {
		return NewError(ErrInvalidRequest, "scene object must carry exactly one kind payload")
	}
	switch o.Kind {
	case KindModel:
		if o.URL == "" {
			return NewError(ErrInvalidRequest, "model object requires url")
		}
	case KindLight:
		if o.Light == nil {
			return NewError(ErrInvalidRequest, "light object requires lightProps")
		}
	case KindCamera:
		if o.Camera == nil {
			return NewError(ErrInvalidRequest, "camera object requires cameraProps")
		}
	default:
		return NewError(ErrInvalidRequest, "unknown scene object kind")
	}
	return nil
}

// LightPatch is a partial light-payload update.
type LightPatch struct {
	Intensity  *float32 `json:"intensity,omitempty"`
	Color      *string  `json:"color,omitempty"`
	CastShadow *bool    `json:"castShadow,omitempty"`
}

// CameraPatch is a partial camera-payload update.
type CameraPatch struct {
	FOV *float32 `json:"fov,omitempty"`
}

// ObjectPatch is a partial scene-object update; nil fields are left as-is.
// Kind and ID are immutable and deliberately absent.
type ObjectPatch struct {
	Name      *string         `json:"name,omitempty"`
	Visible   *bool           `json:"visible,omitempty"`
	Locked    *bool           `json:"locked,omitempty"`
	Transform *TransformPatch `json:"transform,omitempty"`
	Light     *LightPatch     `json:"lightProps,omitempty"`
	Camera    *CameraPatch    `json:"cameraProps,omitempty"`
}

// Apply shallow-merges the patch into o. Payload patches for a kind the
// object does not carry are ignored rather than creating a second payload.
func (p ObjectPatch) Apply(o *SceneObject) {
	if p.Name != nil {
		o.Name = *p.Name
	}
	if p.Visible != nil {
		o.Visible = *p.Visible
	}
	if p.Locked != nil {
		o.Locked = *p.Locked
	}
	if p.Transform != nil {
		p.Transform.Apply(&o.Transform)
	}
	if p.Light != nil && o.Light != nil {
		if p.Light.Intensity != nil {
			o.Light.Intensity = *p.Light.Intensity
		}
		if p.Light.Color != nil {
			o.Light.Color = *p.Light.Color
		}
		if p.Light.CastShadow != nil {
			o.Light.CastShadow = *p.Light.CastShadow
		}
	}
	if p.Camera != nil && o.Camera != nil && p.Camera.FOV != nil {
		o.Camera.FOV = *p.Camera.FOV
	}
}
