// Package api provides OpenAPI/Swagger documentation for the SceneFlow API.
//
// This package contains the request/response DTOs and related documentation
// for the SceneFlow HTTP API.
//
// # API Overview
//
// SceneFlow provides a RESTful API for:
//   - Scene graph editing (models, lights, cameras) with undo/redo
//   - Asset import and AI-driven 3D generation tasks
//   - Free-orbit and scene-camera state management
//   - Auto-expiring editor notifications
//   - A WebSocket stream of state-change events
//   - Vendor task-API proxying and safe file proxying
//   - Health probes and Prometheus metrics
//
// # Authentication
//
// When API keys are configured, endpoints require the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// WebSocket clients may pass the key via the api_key query parameter when
// allow_query_api_key is enabled (browsers cannot set custom headers on
// WebSocket handshakes).
//
// # Base URL
//
// Unless overridden in the server config, the API is served at:
//
//	http://localhost:8080
//
// # Generating Documentation
//
// Swagger documentation is regenerated from the handler annotations with:
//
//	swag init -g cmd/sceneflow/main.go -o api --parseDependency --parseInternal
package api
