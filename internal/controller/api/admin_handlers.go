package api

import (
	"strconv"

	"github.com/Freeeeeet/studyroom/internal/apperr"
	"github.com/Freeeeeet/studyroom/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func (s *Server) shiftInput(c *fiber.Ctx) (service.ShiftInput, error) {
	var req shiftRequest
	if err := s.bind(c, &req); err != nil {
		return service.ShiftInput{}, err
	}
	return service.ShiftInput{
		NumShifts:     req.NumShifts,
		HoursPerShift: req.HoursPerShift,
		StartTime:     req.StartTime,
		Fees:          req.Fees,
		Discounts:     req.discounts(),
		IfVersion:     req.IfVersion,
	}, nil
}

func (s *Server) getShifts(c *fiber.Ctx) error {
	cfg, err := s.services.Shifts.Get(c.UserContext(), identity(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(cfg)
}

func (s *Server) configureShifts(c *fiber.Ctx) error {
	in, err := s.shiftInput(c)
	if err != nil {
		return err
	}
	cfg, err := s.services.Shifts.Configure(c.UserContext(), identity(c).UserID, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(cfg)
}

func (s *Server) updateShifts(c *fiber.Ctx) error {
	in, err := s.shiftInput(c)
	if err != nil {
		return err
	}
	cfg, err := s.services.Shifts.Update(c.UserContext(), identity(c).UserID, in)
	if err != nil {
		return err
	}
	return c.JSON(cfg)
}

func (s *Server) deleteShifts(c *fiber.Ctx) error {
	ifVersion, err := ifVersionQuery(c)
	if err != nil {
		return err
	}
	if err := s.services.Shifts.DeleteAll(c.UserContext(), identity(c).UserID, ifVersion); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) deleteShift(c *fiber.Ctx) error {
	number, err := strconv.Atoi(c.Params("number"))
	if err != nil {
		return apperr.Invalid("shift number must be an integer")
	}
	ifVersion, err := ifVersionQuery(c)
	if err != nil {
		return err
	}
	if err := s.services.Shifts.DeleteByNumber(c.UserContext(), identity(c).UserID, number, ifVersion); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) listSeats(c *fiber.Ctx) error {
	seats, err := s.services.Seats.List(c.UserContext(), identity(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(seats)
}

func (s *Server) availableSeats(c *fiber.Ctx) error {
	var include *uuid.UUID
	if raw := c.Query("student_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperr.Invalid("student_id must be a UUID")
		}
		include = &id
	}
	seats, err := s.services.Seats.Available(c.UserContext(), identity(c).UserID, include)
	if err != nil {
		return err
	}
	return c.JSON(seats)
}

func (s *Server) configureSeats(c *fiber.Ctx) error {
	var req seatCountRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	seats, err := s.services.Seats.Configure(c.UserContext(), identity(c).UserID, req.Count)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(seats)
}

func (s *Server) allocateSeat(c *fiber.Ctx) error {
	seatID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req allocateRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	seat, err := s.services.Seats.Allocate(c.UserContext(), identity(c).UserID, seatID, req.StudentID)
	if err != nil {
		return err
	}
	return c.JSON(seat)
}

func (s *Server) releaseSeat(c *fiber.Ctx) error {
	seatID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.services.Seats.Release(c.UserContext(), identity(c).UserID, seatID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) deleteSeat(c *fiber.Ctx) error {
	seatID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.services.Seats.Delete(c.UserContext(), identity(c).UserID, seatID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) listStudents(c *fiber.Ctx) error {
	students, err := s.services.Students.List(c.UserContext(), identity(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(students)
}

func (s *Server) addStudent(c *fiber.Ctx) error {
	var req addStudentRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	added, err := s.services.Students.Add(c.UserContext(), identity(c).UserID, service.StudentInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Shifts:   req.Shifts,
		SeatID:   req.SeatID,
	})
	if err != nil {
		return err
	}

	body := fiber.Map{"student": added.Student}
	if added.TempPassword != "" {
		body["temp_password"] = added.TempPassword
	}
	return c.Status(fiber.StatusCreated).JSON(body)
}

func (s *Server) getStudent(c *fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	student, err := s.services.Students.Get(c.UserContext(), identity(c).UserID, id)
	if err != nil {
		return err
	}
	return c.JSON(student)
}

func (s *Server) updateEnrollment(c *fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req enrollmentRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	student, err := s.services.Students.UpdateEnrollment(c.UserContext(), identity(c).UserID, id, service.EnrollmentInput{
		Shifts:    req.Shifts,
		SeatID:    req.SeatID,
		ClearSeat: req.ClearSeat,
	})
	if err != nil {
		return err
	}
	return c.JSON(student)
}

func (s *Server) removeStudent(c *fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.services.Students.Remove(c.UserContext(), identity(c).UserID, id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) setPayment(c *fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req paymentRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	student, err := s.services.Students.SetPayment(c.UserContext(), identity(c).UserID, id, *req.Paid)
	if err != nil {
		return err
	}
	return c.JSON(student)
}

func (s *Server) deallocateSeat(c *fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.services.Seats.Deallocate(c.UserContext(), identity(c).UserID, id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
