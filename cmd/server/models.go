package main

// API Request and Response Models with Swagger annotations

// WebhookResponse is returned for every accepted delivery
type WebhookResponse struct {
	Outcome    string `json:"outcome" example:"RuleApplied"`
	Message    string `json:"message" example:"Rule was applied for the item."`
	DeliveryID string `json:"deliveryId" example:"123e4567-e89b-12d3-a456-426614174000"`
} // @name WebhookResponse

// RuleDocumentResponse summarizes a stored rule document
type RuleDocumentResponse struct {
	Type  string `json:"type" example:"Task"`
	Key   string `json:"key" example:"rule.task.json"`
	Rules int    `json:"rules" example:"2"`
} // @name RuleDocumentResponse

// RuleTypesResponse lists the work item types with rule documents
type RuleTypesResponse struct {
	Types []string `json:"types" example:"task,bug"`
} // @name RuleTypesResponse

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"invalid event"`
	Details string `json:"details,omitempty" example:"unexpected event type \"workitem.created\""`
} // @name ErrorResponse

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string   `json:"status" example:"healthy"`
	Backend       string   `json:"backend" example:"blob"`
	Organizations []string `json:"organizations,omitempty" example:"contoso"`
	Error         string   `json:"error,omitempty"`
} // @name HealthResponse
