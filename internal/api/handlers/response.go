package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/andresuchdata/stockledger/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// errBadRequest marks input that could not be parsed at all.
var errBadRequest = errors.New("bad request")

// statusFor maps a ledger error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownItem),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyConsumedDownstream),
		errors.Is(err, domain.ErrItemInUse),
		errors.Is(err, domain.ErrDuplicateItem),
		errors.Is(err, domain.ErrPurchaseVoided):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoRecipe),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrUnknownPinnedLot),
		errors.Is(err, domain.ErrPinnedLotInsufficient),
		errors.Is(err, domain.ErrExceedsRemaining),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrItemArchived),
		errors.Is(err, domain.ErrInvalidItem),
		errors.Is(err, domain.ErrInvalidRecipe),
		errors.Is(err, domain.ErrRecipeCycle),
		errors.Is(err, domain.ErrInvalidPurchase),
		errors.Is(err, domain.ErrInvalidReason):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// respondError writes the error body. Internal failures hide their detail
// from the caller and are logged instead.
func respondError(c *gin.Context, err error, message string) {
	status := statusFor(err)
	body := gin.H{"error": message, "kind": domain.Kind(err), "details": err.Error()}
	if errors.Is(err, errBadRequest) {
		body["kind"] = "bad_request"
	}

	var shortage *domain.ShortageError
	if errors.As(err, &shortage) {
		body["max_producible"] = shortage.MaxProducible
		body["item_id"] = shortage.ItemID
	}
	var recipe *domain.RecipeError
	if errors.As(err, &recipe) {
		if len(recipe.Cycle) > 0 {
			body["cycle"] = recipe.Cycle
		} else {
			body["problems"] = recipe.Problems
		}
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg(message)
		delete(body, "details")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, message string, err error) {
	if err == nil {
		err = errBadRequest
	} else {
		err = errors.Join(errBadRequest, err)
	}
	respondError(c, err, message)
}

// idParam reads a positive integer path parameter.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name, nil)
		return 0, false
	}
	return id, true
}

// intQuery reads an optional integer query parameter.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "invalid "+name, err)
		return 0, false
	}
	return v, true
}
