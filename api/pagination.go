package api

import (
	"net/http"
	"strconv"
	"strings"

	"brokeradmin/core"
)

// parsePageLink reads pageSize (required), page, textSearch, sortProperty and
// sortOrder from the query string.
func parsePageLink(r *http.Request) (core.PageLink, error) {
	q := r.URL.Query()

	rawSize := q.Get("pageSize")
	if rawSize == "" {
		return core.PageLink{}, core.NewInvalidParameterError("Parameter 'pageSize' is required")
	}
	pageSize, err := strconv.Atoi(rawSize)
	if err != nil {
		return core.PageLink{}, core.NewInvalidParameterError("Incorrect pageSize %s", rawSize)
	}

	page := 0
	if raw := q.Get("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil {
			return core.PageLink{}, core.NewInvalidParameterError("Incorrect page %s", raw)
		}
	}

	link := core.PageLink{
		PageSize:   pageSize,
		Page:       page,
		TextSearch: strings.TrimSpace(q.Get("textSearch")),
	}
	if property := q.Get("sortProperty"); property != "" {
		direction := strings.ToUpper(q.Get("sortOrder"))
		if direction == "" {
			direction = core.SortASC
		}
		link.SortOrder = &core.SortOrder{Property: property, Direction: direction}
	}

	if err := link.Validate(); err != nil {
		return core.PageLink{}, err
	}
	return link, nil
}
