package request

type ValidateTokenRequest struct {
	Token string `json:"token" binding:"required"`
}
