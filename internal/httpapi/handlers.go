package httpapi

import (
	"errors"
	"net/http"
	"time"

	"softswitch/internal/auth"
	"softswitch/internal/cdr"
	"softswitch/internal/channel"
	"softswitch/internal/events"
	"softswitch/internal/pickup"
	"softswitch/pkg/logger"
	"softswitch/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Registry *channel.Registry
	Core     *channel.Core
	Pickup   *pickup.Service
	CDR      *cdr.Service
	Events   events.Publisher

	// DefaultContext is assigned to legs created without a dial context.
	DefaultContext string

	// Redis + AttemptCap bound concurrent pickup attempts per dial
	// context. Cap disabled when Redis is nil or AttemptCap is 0.
	Redis      *redis.Client
	AttemptCap int
	CapTTL     time.Duration
}

// --- Auth ---

type tokenRequest struct {
	OperatorID string `json:"operator_id"`
	Role       string `json:"role"`
}

// IssueToken issues an operator JWT.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.OperatorID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "operator_id, role required"})
		return
	}
	tok, err := h.Auth.Issue(time.Now(), req.OperatorID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok})
}

// --- Channels ---

func (h Handlers) ListChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channels": h.Registry.Snapshots()})
}

func (h Handlers) GetChannel(c *gin.Context) {
	ch, ok := h.Registry.Get(c.Param("channel_id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}
	c.JSON(http.StatusOK, ch.Snapshot())
}

type createChannelRequest struct {
	Name        string            `json:"name"`
	Exten       string            `json:"exten"`
	MacroExten  string            `json:"macro_exten"`
	Context     string            `json:"context"`
	State       string            `json:"state"`
	InDialplan  bool              `json:"in_dialplan"`
	CallGroup   string            `json:"call_group"`
	PickupGroup string            `json:"pickup_group"`
	Variables   map[string]string `json:"variables"`
}

// CreateChannel injects a synthetic call leg. This stands in for the host
// switch's leg creation, which is out of scope for the pickup core; it
// exists for operators and integration drills. Admin-only.
func (h Handlers) CreateChannel(c *gin.Context) {
	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Name == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}

	state := channel.StateRinging
	if req.State != "" {
		s, ok := channel.ParseState(req.State)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown state"})
			return
		}
		state = s
	}
	callGroup, err := channel.ParseGroups(req.CallGroup)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pickupGroup, err := channel.ParseGroups(req.PickupGroup)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dialContext := req.Context
	if dialContext == "" {
		dialContext = h.DefaultContext
	}

	ch := channel.New(channel.Params{
		Name:        req.Name,
		Exten:       req.Exten,
		MacroExten:  req.MacroExten,
		DialContext: dialContext,
		State:       state,
		InDialplan:  req.InDialplan,
		CallGroup:   callGroup,
		PickupGroup: pickupGroup,
		Variables:   req.Variables,
	})
	if err := h.Registry.Add(ch); err != nil {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	h.publish(c, events.Event{Type: events.TypeChannelCreated, ChannelID: ch.ID(), ChannelName: ch.Name()})
	c.JSON(http.StatusCreated, ch.Snapshot())
}

// HangupChannel retires a leg. Admin-only.
func (h Handlers) HangupChannel(c *gin.Context) {
	ch, ok := h.Registry.Get(c.Param("channel_id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}
	if err := h.Core.Hangup(ch); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.publish(c, events.Event{Type: events.TypeChannelHangup, ChannelID: ch.ID(), ChannelName: ch.Name()})
	c.JSON(http.StatusOK, gin.H{"status": "hung_up"})
}

// --- Pickup ---

type pickupRequest struct {
	// ChannelID identifies the requester leg (the picker).
	ChannelID string `json:"channel_id"`

	// Targets is the raw identifier list:
	// "exten[@context]][&exten2@context2...]", "exten@PICKUPMARK" for mark
	// matching, or empty for pickup-group fallback.
	Targets string `json:"targets"`
}

// ExecutePickup runs a directed call pickup on behalf of a requester leg.
func (h Handlers) ExecutePickup(c *gin.Context) {
	var req pickupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ChannelID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "channel_id required"})
		return
	}
	requester, ok := h.Registry.Get(req.ChannelID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "requester channel not found"})
		return
	}

	ctx := c.Request.Context()
	log := logger.FromGin(c)

	requester.Lock()
	dialContext := requester.DialContext()
	requester.Unlock()

	if h.Redis != nil && h.AttemptCap > 0 {
		ok, err := utils.AcquirePickupSlot(ctx, h.Redis, dialContext, h.AttemptCap, h.CapTTL)
		if err != nil {
			log.Warn("pickup cap check failed", "err", err)
		} else if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many concurrent pickup attempts"})
			return
		} else {
			defer func() {
				if err := utils.ReleasePickupSlot(ctx, h.Redis, dialContext); err != nil {
					log.Warn("pickup cap release failed", "err", err)
				}
			}()
		}
	}

	res, err := h.Pickup.Pickup(ctx, requester, req.Targets)
	h.record(c, requester, req.Targets, res, err)

	switch {
	case err == nil:
		h.publish(c, events.Event{
			Type: events.TypePickup, ChannelID: requester.ID(), ChannelName: requester.Name(),
			Detail: map[string]string{"targets": req.Targets, "target": res.TargetName},
		})
		c.JSON(http.StatusOK, gin.H{"status": "picked_up", "channel": requester.Snapshot()})
	case errors.Is(err, pickup.ErrNoTarget):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no pickup target"})
	case errors.Is(err, pickup.ErrAnswer), errors.Is(err, pickup.ErrQueueControl), errors.Is(err, pickup.ErrMasquerade):
		h.publish(c, events.Event{
			Type: events.TypePickupFailed, ChannelID: requester.ID(), ChannelName: requester.Name(),
			Detail: map[string]string{"targets": req.Targets, "err": err.Error()},
		})
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "pickup transaction failed"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "pickup failed"})
	}
}

// record writes the pickup CDR. Best-effort: failures are logged, never
// surfaced to the caller.
func (h Handlers) record(c *gin.Context, requester *channel.Channel, spec string, res pickup.Result, pickupErr error) {
	if h.CDR == nil {
		return
	}
	rec := cdr.Record{
		RequesterID:   requester.ID(),
		RequesterName: requester.Name(),
		TargetID:      res.TargetID,
		TargetName:    res.TargetName,
		TargetExten:   res.TargetExten,
		DialContext:   res.DialContext,
		Spec:          spec,
		Outcome:       cdr.OutcomeCompleted,
	}
	switch {
	case errors.Is(pickupErr, pickup.ErrNoTarget):
		rec.Outcome = cdr.OutcomeNoTarget
	case errors.Is(pickupErr, pickup.ErrAnswer):
		rec.Outcome, rec.FailedStep = cdr.OutcomeFailed, "answer"
	case errors.Is(pickupErr, pickup.ErrQueueControl):
		rec.Outcome, rec.FailedStep = cdr.OutcomeFailed, "control"
	case errors.Is(pickupErr, pickup.ErrMasquerade):
		rec.Outcome, rec.FailedStep = cdr.OutcomeFailed, "masquerade"
	}
	if err := h.CDR.Append(c.Request.Context(), rec); err != nil {
		logger.FromGin(c).Warn("cdr append failed", "err", err)
	}
}

// publish sends a switch event. Best-effort.
func (h Handlers) publish(c *gin.Context, e events.Event) {
	if h.Events == nil {
		return
	}
	e.At = time.Now().UTC()
	if err := h.Events.Publish(c.Request.Context(), e); err != nil {
		logger.FromGin(c).Warn("event publish failed", "type", string(e.Type), "err", err)
	}
}
