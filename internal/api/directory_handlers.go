package api

import (
	"net/http"
	"strconv"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
	"github.com/hackgods/clinic-scheduling-engine/internal/directory"
)

// Providers

func createProviderHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in directory.NewProvider
		if err := decodeJSON(r, &in, false); err != nil {
			writeError(w, r, err)
			return
		}
		p, err := svc.CreateProvider(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func listProvidersHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers, err := svc.ListProviders(r.Context(), r.URL.Query().Get("status"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(providers))
	}
}

func providerCountsHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := svc.ProviderCounts(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, counts)
	}
}

func getProviderHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		p, err := svc.GetProvider(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func updateProviderHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var upd directory.ProviderUpdate
		if err := decodeJSON(r, &upd, false); err != nil {
			writeError(w, r, err)
			return
		}
		p, err := svc.UpdateProvider(r.Context(), id, upd)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// Availability templates

func setAvailabilityHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var in []directory.TemplateInput
		if err := decodeJSON(r, &in, false); err != nil {
			writeError(w, r, err)
			return
		}
		templates, err := svc.SetAvailability(r.Context(), id, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(templates))
	}
}

func getAvailabilityHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		templates, err := svc.GetAvailability(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(templates))
	}
}

// Time-off

func addTimeOffHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var in directory.NewTimeOff
		if err := decodeJSON(r, &in, false); err != nil {
			writeError(w, r, err)
			return
		}
		in.ProviderID = id
		b, err := svc.AddTimeOff(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, b)
	}
}

func listTimeOffHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		from, err := queryTime(r, "from")
		if err != nil {
			writeError(w, r, err)
			return
		}
		to, err := queryTime(r, "to")
		if err != nil {
			writeError(w, r, err)
			return
		}
		blocks, err := svc.ListTimeOff(r.Context(), id, from, to)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(blocks))
	}
}

func setTimeOffStatusHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req TimeOffStatusRequest
		if err := decodeJSON(r, &req, false); err != nil {
			writeError(w, r, err)
			return
		}
		b, err := svc.SetTimeOffStatus(r.Context(), id, directory.TimeOffStatus(req.Status))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

// Resources

func createResourceHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in directory.NewResource
		if err := decodeJSON(r, &in, false); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := svc.CreateResource(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

func listResourcesHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resources, err := svc.ListResources(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(resources))
	}
}

// Appointment types

func createAppointmentTypeHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in directory.NewAppointmentType
		if err := decodeJSON(r, &in, false); err != nil {
			writeError(w, r, err)
			return
		}
		t, err := svc.CreateAppointmentType(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func listAppointmentTypesHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly := false
		if raw := r.URL.Query().Get("active"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, r, apperr.Validation("active must be true or false"))
				return
			}
			activeOnly = v
		}
		types, err := svc.ListAppointmentTypes(r.Context(), activeOnly)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(types))
	}
}

// nonNil keeps empty lists serialized as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
