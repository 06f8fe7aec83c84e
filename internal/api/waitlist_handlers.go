package api

import (
	"net/http"

	"github.com/hackgods/clinic-scheduling-engine/internal/waitlist"
)

func addWaitlistHandler(svc WaitlistService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in waitlist.NewEntry
		if err := decodeJSON(r, &in, false); err != nil {
			writeError(w, r, err)
			return
		}
		e, err := svc.Add(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

func listWaitlistHandler(svc WaitlistService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f waitlist.ListFilter
		if raw := r.URL.Query().Get("status"); raw != "" {
			st := waitlist.Status(raw)
			f.Status = &st
		}
		patientID, err := queryUUID(r, "patient_id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		f.PatientID = patientID

		entries, err := svc.List(r.Context(), f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(entries))
	}
}

func getWaitlistHandler(svc WaitlistService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		e, err := svc.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func cancelWaitlistHandler(svc WaitlistService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		e, err := svc.Cancel(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func fillWaitlistHandler(svc WaitlistService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req FillWaitlistRequest
		if err := decodeJSON(r, &req, false); err != nil {
			writeError(w, r, err)
			return
		}
		e, err := svc.MarkFilled(r.Context(), id, req.AppointmentID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}
