package api

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/tracebase-eu/tracebase/internal/globalfilter"
	"github.com/tracebase-eu/tracebase/internal/middleware"
	"github.com/tracebase-eu/tracebase/internal/orchestrator"
	"github.com/tracebase-eu/tracebase/internal/preset"
	"github.com/tracebase-eu/tracebase/internal/query"
)

// Resolve request options that are not navigation state
const (
	optExecute = "execute"
	optCount   = "count"
	optEntity  = "entity"
)

// PresetHandler serves the preset catalogue and resolves presets into queries
type PresetHandler struct {
	registry *preset.Registry
	executor Executor
	parser   *query.Parser
}

// NewPresetHandler creates a preset handler
func NewPresetHandler(registry *preset.Registry, executor Executor, parser *query.Parser) *PresetHandler {
	return &PresetHandler{
		registry: registry,
		executor: executor,
		parser:   parser,
	}
}

// RegisterRoutes registers preset routes
func (h *PresetHandler) RegisterRoutes(router fiber.Router) {
	presets := router.Group("/presets")
	presets.Get("/", h.ListPresets)
	presets.Get("/:preset/resolve", h.ResolvePreset)
	presets.Post("/:preset/resolve", h.ResolvePreset)
}

// ResolveRequest is the optional POST body of a resolve request
type ResolveRequest struct {
	X      interface{}            `json:"x"`
	Global interface{}            `json:"global"`
	Params map[string]interface{} `json:"params"`
}

// ResolveResponse describes the query a preset produced
type ResolveResponse struct {
	Preset  preset.ID                `json:"preset"`
	Entity  preset.Entity            `json:"entity"`
	Kind    string                   `json:"kind"`
	Query   map[string]interface{}   `json:"query"`
	Where   map[string]interface{}   `json:"where"`
	Records []map[string]interface{} `json:"records,omitempty"`
	Count   *int                     `json:"count,omitempty"`
}

// ListPresets returns every registered preset
func (h *PresetHandler) ListPresets(c *fiber.Ctx) error {
	return c.JSON(h.registry.Describe())
}

// ResolvePreset resolves one preset against the navigation state in the
// query string (and POST body), merges it into the page filters and
// optionally executes the result.
func (h *PresetHandler) ResolvePreset(c *fiber.Ctx) error {
	id := preset.ID(c.Params("preset"))
	c.Locals(middleware.LocalPresetID, string(id))

	def, ok := h.registry.Lookup(id)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown preset: "+string(id))
	}

	values, err := url.ParseQuery(string(c.Request().URI().QueryString()))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid query string")
	}
	execute := cast.ToBool(values.Get(optExecute))
	count := cast.ToBool(values.Get(optCount))
	entity := def.Entity
	if entity == preset.EntityAny {
		entity = preset.Entity(values.Get(optEntity))
	}
	for _, key := range []string{optExecute, optCount, optEntity} {
		values.Del(key)
	}

	nav := globalfilter.NavigationFromValues(values)
	nav.Preset = string(id)
	if c.Method() == fiber.MethodPost && len(c.Body()) > 0 {
		var body ResolveRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		applyBody(&nav, body)
	}

	base, err := h.parser.Parse(nav.Params)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	global, err := globalfilter.Decode(nav.Global)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	res, err := h.registry.Resolve(ctx, preset.InputFromNavigation(nav, global))
	if err != nil {
		return err
	}

	fragment, err := preset.Await(ctx, res)
	if err != nil {
		return err
	}
	list := orchestrator.NewListQuery(base)
	list.Apply(fragment)
	qb := list.Build()

	resp := ResolveResponse{
		Preset: id,
		Entity: entity,
		Kind:   res.Kind().String(),
		Query:  qb.BuildQuery(),
		Where:  qb.Filter.GenerateCondition(),
	}

	if execute || count {
		if h.executor == nil {
			return fiber.NewError(fiber.StatusNotImplemented, "query execution is not configured")
		}
		if entity == preset.EntityAny {
			return fiber.NewError(fiber.StatusBadRequest, "entity is required to execute this preset")
		}
	}
	if execute {
		records, err := h.executor.List(ctx, entity, qb)
		if err != nil {
			return err
		}
		if records == nil {
			records = []map[string]interface{}{}
		}
		resp.Records = records
	}
	if count {
		n, err := h.executor.Count(ctx, entity, qb)
		if err != nil {
			return err
		}
		resp.Count = &n
	}

	log.Debug().
		Str("preset", string(id)).
		Str("entity", string(entity)).
		Bool("execute", execute).
		Msg("Preset resolved over HTTP")

	return c.JSON(resp)
}

// applyBody overlays the POST body on the navigation state
func applyBody(nav *globalfilter.NavigationState, body ResolveRequest) {
	if x := cast.ToString(body.X); x != "" {
		nav.X = x
	}
	if body.Global != nil {
		nav.Global = body.Global
	}
	if nav.Params == nil {
		nav.Params = url.Values{}
	}
	for key, raw := range body.Params {
		switch v := raw.(type) {
		case []interface{}:
			nav.Params[key] = cast.ToStringSlice(v)
		case string:
			nav.Params[key] = []string{strings.TrimSpace(v)}
		default:
			nav.Params[key] = []string{cast.ToString(v)}
		}
	}
}
