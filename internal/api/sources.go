package api

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/store"
)

// MaxUploadBytes bounds multipart uploads.
const MaxUploadBytes = 50 << 20

type UploadInput struct {
	RawBody multipart.Form
}

type UploadBody struct {
	Source *service.Source `json:"source" doc:"Registered source"`
	File   store.FileRecord `json:"file" doc:"Stored file metadata"`
}

type LoadInput struct {
	Body struct {
		Name string `json:"name" required:"true" doc:"Stored file name" example:"Rede Norte.kmz"`
	}
}

type GroupsBody struct {
	Attribute string   `json:"attribute,omitempty" doc:"Grouping attribute"`
	Groups    []string `json:"groups" doc:"Groups discovered at ingestion"`
	Selected  []string `json:"selected" doc:"Groups currently visible"`
	Total     int      `json:"total" doc:"Number of groups"`
}

type GroupInput struct {
	IDInput
	Group string `path:"group" doc:"Group value" example:"AL-07"`
	Body  struct {
		Selected bool `json:"selected" doc:"Whether the group is visible"`
	}
}

type FilterBody struct {
	service.Filter
	Expression []any `json:"expression,omitempty" doc:"Map-engine filter expression; absent means no filter"`
}

// RegisterSources registers loaded-source routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.ListSources, huma.OperationTags("sources"))
	huma.Get(api, "/api/v1/sources/{id}", h.GetSource, huma.OperationTags("sources"))
	huma.Delete(api, "/api/v1/sources/{id}", h.DeleteSource, huma.OperationTags("sources"))
	huma.Register(api, huma.Operation{
		OperationID:   "upload-source",
		Method:        http.MethodPost,
		Path:          "/api/v1/sources/upload",
		Summary:       "Upload source",
		Description:   "Validates, decodes and stores a KML, KMZ or GeoJSON file, then loads it.",
		Tags:          []string{"sources"},
		MaxBodyBytes:  MaxUploadBytes,
		DefaultStatus: http.StatusCreated,
	}, h.UploadSource)
	huma.Post(api, "/api/v1/sources/load", h.LoadSource, huma.OperationTags("sources"))
}

// RegisterGroups registers group selection routes.
func (h *APIHandler) RegisterGroups(api huma.API) {
	huma.Get(api, "/api/v1/sources/{id}/groups", h.GetGroups, huma.OperationTags("groups"))
	huma.Put(api, "/api/v1/sources/{id}/groups/{group}", h.PutGroup, huma.OperationTags("groups"))
	huma.Post(api, "/api/v1/sources/{id}/groups/select-all", h.SelectAll, huma.OperationTags("groups"))
	huma.Post(api, "/api/v1/sources/{id}/groups/deselect-all", h.DeselectAll, huma.OperationTags("groups"))
	huma.Post(api, "/api/v1/groups/select-all", h.SelectAllSources, huma.OperationTags("groups"))
	huma.Post(api, "/api/v1/groups/deselect-all", h.DeselectAllSources, huma.OperationTags("groups"))
	huma.Get(api, "/api/v1/sources/{id}/filter", h.GetFilter, huma.OperationTags("groups"))
}

// Handlers

func (h *APIHandler) ListSources(ctx context.Context, input *struct{}) (*SourcesOutput, error) {
	return &SourcesOutput{Body: h.svc.Registry.List()}, nil
}

func (h *APIHandler) GetSource(ctx context.Context, input *IDInput) (*SourceOutput, error) {
	src, err := h.svc.Registry.GetByID(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &SourceOutput{Body: src}, nil
}

func (h *APIHandler) DeleteSource(ctx context.Context, input *IDInput) (*MessageOutput, error) {
	src, err := h.svc.Registry.GetByID(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	h.svc.Registry.Remove(src.Name)
	return &MessageOutput{Body: MessageBody{Message: "Source removed"}}, nil
}

func (h *APIHandler) UploadSource(ctx context.Context, input *UploadInput) (*struct{ Body UploadBody }, error) {
	if h.svc.Library == nil {
		return nil, huma.Error503ServiceUnavailable("store not available")
	}
	files := input.RawBody.File["file"]
	if len(files) == 0 {
		return nil, huma.Error400BadRequest("No file provided")
	}
	header := files[0]
	f, err := header.Open()
	if err != nil {
		return nil, huma.Error400BadRequest("Failed to read upload: " + err.Error())
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, huma.Error400BadRequest("Failed to read upload: " + err.Error())
	}

	at, err := formPoint(input.RawBody.Value)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	src, rec, err := h.svc.Library.Upload(ctx, header.Filename, data, at)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body UploadBody }{Body: UploadBody{Source: src, File: rec}}, nil
}

// formPoint reads optional lon/lat form values.
func formPoint(values map[string][]string) (*orb.Point, error) {
	lon, lat := first(values["lon"]), first(values["lat"])
	if lon == "" || lat == "" {
		return nil, nil
	}
	x, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil, err
	}
	y, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, err
	}
	return &orb.Point{x, y}, nil
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func (h *APIHandler) LoadSource(ctx context.Context, input *LoadInput) (*SourceOutput, error) {
	if h.svc.Library == nil {
		return nil, huma.Error503ServiceUnavailable("store not available")
	}
	src, err := h.svc.Library.Open(ctx, input.Body.Name)
	if err != nil {
		return nil, apiError(err)
	}
	return &SourceOutput{Body: src}, nil
}

func (h *APIHandler) GetGroups(ctx context.Context, input *IDInput) (*struct{ Body GroupsBody }, error) {
	src, err := h.svc.Registry.GetByID(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body GroupsBody }{Body: groupsBody(src)}, nil
}

func groupsBody(src *service.Source) GroupsBody {
	return GroupsBody{
		Attribute: src.GroupingAttribute,
		Groups:    src.Groups,
		Selected:  src.Selected,
		Total:     len(src.Groups),
	}
}

// withSource resolves the path id, applies fn to the source name and
// returns the updated groups.
func (h *APIHandler) withSource(id string, fn func(name string) error) (*struct{ Body GroupsBody }, error) {
	src, err := h.svc.Registry.GetByID(id)
	if err != nil {
		return nil, apiError(err)
	}
	if err := fn(src.Name); err != nil {
		return nil, apiError(err)
	}
	if src, err = h.svc.Registry.GetByID(id); err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body GroupsBody }{Body: groupsBody(src)}, nil
}

func (h *APIHandler) PutGroup(ctx context.Context, input *GroupInput) (*struct{ Body GroupsBody }, error) {
	return h.withSource(input.ID, func(name string) error {
		return h.svc.Registry.SetGroupSelected(name, input.Group, input.Body.Selected)
	})
}

func (h *APIHandler) SelectAll(ctx context.Context, input *IDInput) (*struct{ Body GroupsBody }, error) {
	return h.withSource(input.ID, h.svc.Registry.SelectAllGroups)
}

func (h *APIHandler) DeselectAll(ctx context.Context, input *IDInput) (*struct{ Body GroupsBody }, error) {
	return h.withSource(input.ID, h.svc.Registry.DeselectAllGroups)
}

func (h *APIHandler) SelectAllSources(ctx context.Context, input *struct{}) (*MessageOutput, error) {
	h.svc.Registry.SelectAllGroupsAll()
	return &MessageOutput{Body: MessageBody{Message: "All groups selected"}}, nil
}

func (h *APIHandler) DeselectAllSources(ctx context.Context, input *struct{}) (*MessageOutput, error) {
	h.svc.Registry.DeselectAllGroupsAll()
	return &MessageOutput{Body: MessageBody{Message: "All groups deselected"}}, nil
}

func (h *APIHandler) GetFilter(ctx context.Context, input *IDInput) (*struct{ Body FilterBody }, error) {
	src, err := h.svc.Registry.GetByID(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	f, err := h.svc.Registry.Filter(src.Name)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body FilterBody }{Body: FilterBody{Filter: f, Expression: f.Expression()}}, nil
}
