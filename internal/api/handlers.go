package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/availability"
	"github.com/hackgods/clinic-scheduling-engine/internal/slot"
)

func listSlotsHandler(svc SlotService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := queryDate(r, "date", loc)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if date == nil {
			writeError(w, r, apperr.Validation("date is required"))
			return
		}
		providerID, err := queryUUID(r, "provider_id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		typeID, err := queryUUID(r, "appointment_type_id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		duration, err := queryInt(r, "duration")
		if err != nil {
			writeError(w, r, err)
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), availability.Query{
			Date:              *date,
			ProviderID:        providerID,
			AppointmentTypeID: typeID,
			DurationOverride:  duration,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, SlotsResponse{Date: date.Format(time.DateOnly), Slots: slots})
	}
}

func createAppointmentHandler(svc AppointmentService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := decodeJSON(r, &req, false); err != nil {
			writeError(w, r, err)
			return
		}
		date, err := slot.ParseDate(req.Date, loc)
		if err != nil {
			writeError(w, r, apperr.Validation(err.Error()))
			return
		}

		appt, err := svc.Create(r.Context(), appointment.CreateRequest{
			PatientID:         req.PatientID,
			ProviderID:        req.ProviderID,
			Date:              date,
			Start:             req.StartTime,
			DurationMinutes:   req.DurationMinutes,
			Type:              req.Type,
			AppointmentTypeID: req.AppointmentTypeID,
			ResourceID:        req.ResourceID,
			Price:             req.Price,
			Notes:             req.Notes,
			Source:            req.Source,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc AppointmentService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			f   appointment.ListFilter
			err error
		)
		if f.Date, err = queryDate(r, "date", loc); err != nil {
			writeError(w, r, err)
			return
		}
		if f.From, err = queryDate(r, "from", loc); err != nil {
			writeError(w, r, err)
			return
		}
		if f.To, err = queryDate(r, "to", loc); err != nil {
			writeError(w, r, err)
			return
		}
		if f.ProviderID, err = queryUUID(r, "provider_id"); err != nil {
			writeError(w, r, err)
			return
		}
		if f.PatientID, err = queryUUID(r, "patient_id"); err != nil {
			writeError(w, r, err)
			return
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			st := appointment.Status(raw)
			f.Status = &st
		}
		if f.Limit, err = queryInt(r, "limit"); err != nil {
			writeError(w, r, err)
			return
		}
		if f.Offset, err = queryInt(r, "offset"); err != nil {
			writeError(w, r, err)
			return
		}

		appts, err := svc.List(r.Context(), f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(appts))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func todayCountHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := queryUUID(r, "provider_id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		n, err := svc.TodayCount(r.Context(), providerID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: n})
	}
}

func updateStatusHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req UpdateStatusRequest
		if err := decodeJSON(r, &req, false); err != nil {
			writeError(w, r, err)
			return
		}
		appt, err := svc.UpdateStatus(r.Context(), id, appointment.Status(req.Status), appointment.StatusExtras{Reason: req.Reason})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// transitionHandler serves the one-word status conveniences (confirm, check-in, ...).
func transitionHandler(do func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		appt, err := do(r, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointment(svc AppointmentService) func(*http.Request, uuid.UUID) (*appointment.Appointment, error) {
	return func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		var req CancelRequest
		if err := decodeJSON(r, &req, true); err != nil {
			return nil, err
		}
		return svc.Cancel(r.Context(), id, req.Reason)
	}
}

func rescheduleHandler(svc AppointmentService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req RescheduleRequest
		if err := decodeJSON(r, &req, false); err != nil {
			writeError(w, r, err)
			return
		}
		date, err := slot.ParseDate(req.Date, loc)
		if err != nil {
			writeError(w, r, apperr.Validation(err.Error()))
			return
		}

		old, created, err := svc.Reschedule(r.Context(), id, appointment.RescheduleRequest{
			Date:            date,
			Start:           req.StartTime,
			ProviderID:      req.ProviderID,
			ResourceID:      req.ResourceID,
			DurationMinutes: req.DurationMinutes,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, RescheduleResponse{
			Previous:    toAppointmentResponse(old),
			Appointment: toAppointmentResponse(created),
		})
	}
}

func upcomingHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		limit, err := queryInt(r, "limit")
		if err != nil {
			writeError(w, r, err)
			return
		}
		appts, err := svc.Upcoming(r.Context(), patientID, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(appts))
	}
}
