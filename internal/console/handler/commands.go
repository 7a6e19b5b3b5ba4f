package handler

import (
	"net/http"

	"github.com/xela07ax/spaceai-fleet/internal/policy"
)

// ListCommands — GET /v1/commands: каталог белого списка.
func ListCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, policy.All())
}
