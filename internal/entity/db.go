package entity

// Re-export common types from the common package for backward compatibility.

import (
	"glamshot/internal/entity/common"
	"glamshot/internal/entity/db"
)

// Type aliases for common types
type Response = common.Response
type ResponseItems = common.ResponseItems
type Meta = common.Meta

// Database models
type DbUser = db.User
type DbGeneratedImage = db.GeneratedImage
