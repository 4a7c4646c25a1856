package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/office-hours-api/internal/middleware"
	"github.com/noah-isme/office-hours-api/internal/repository/memstore"
	"github.com/noah-isme/office-hours-api/internal/service"
)

type envelope struct {
	Message string                 `json:"message"`
	Data    json.RawMessage        `json:"data"`
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Meta    map[string]interface{} `json:"meta"`
}

type apiUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type apiSlot struct {
	ID        string `json:"id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	IsBooked  bool   `json:"is_booked"`
}

type apiAppointment struct {
	ID          string  `json:"id"`
	StudentID   string  `json:"student_id"`
	ProfessorID string  `json:"professor_id"`
	Status      string  `json:"status"`
	Professor   apiUser `json:"professor"`
	Student     apiUser `json:"student"`
}

type testAPI struct {
	t      *testing.T
	router *gin.Engine
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memstore.New()
	metrics := service.NewMetricsService()

	auth := service.NewAuthService(store.Users(), nil, nil, nil, service.AuthConfig{
		Secret:     "router-test",
		Expiration: time.Hour,
		BcryptCost: bcrypt.MinCost,
	})
	availability := service.NewAvailabilityService(store.Availability(), nil, nil, metrics, nil, nil)
	booking := service.NewBookingService(store.Appointments(), nil, metrics, nil, nil)

	router := NewRouter(RouterConfig{
		Auth:         auth,
		Availability: availability,
		Booking:      booking,
		Export:       service.NewExportService(booking, nil),
		Metrics:      metrics,
		AuthLimiter:  middleware.NewRateLimiter(1000, 1000),
	})
	return &testAPI{t: t, router: router}
}

func (a *testAPI) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (a *testAPI) signup(name, email, role string) (string, apiUser) {
	a.t.Helper()
	rec, env := a.do(http.MethodPost, "/auth/signup", "", map[string]string{
		"name": name, "email": email, "password": "secret1", "role": role,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(a.t, "User created successfully", env.Message)
	var data struct {
		Token string  `json:"token"`
		User  apiUser `json:"user"`
	}
	require.NoError(a.t, json.Unmarshal(env.Data, &data))
	return data.Token, data.User
}

func (a *testAPI) publish(token, date, start, end string) (*httptest.ResponseRecorder, envelope) {
	return a.do(http.MethodPost, "/availability", token, map[string]string{"date": date, "startTime": start, "endTime": end})
}

func (a *testAPI) openSlots(token, professorID string) []apiSlot {
	a.t.Helper()
	rec, env := a.do(http.MethodGet, "/professor/"+professorID+"/availability", token, nil)
	require.Equal(a.t, http.StatusOK, rec.Code)
	var data struct {
		Slots []apiSlot `json:"available_slots"`
	}
	require.NoError(a.t, json.Unmarshal(env.Data, &data))
	return data.Slots
}

func decodeData(t *testing.T, env envelope, key string, dest interface{}) {
	t.Helper()
	var data map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NoError(t, json.Unmarshal(data[key], dest))
}

func TestRootAndUnknownRoute(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Appointment system API", env.Message)

	rec, env = api.do(http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route not found", env.Error)
	assert.Equal(t, "NOT_FOUND", env.Code)

	rec, _ = api.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t)
	token, user := api.signup("Dr. Smith", "smith@example.com", "professor")
	assert.Equal(t, "professor", user.Role)

	rec, env := api.do(http.MethodPost, "/auth/signup", "", map[string]string{
		"name": "Again", "email": "smith@example.com", "password": "secret1", "role": "student",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists", env.Error)

	rec, env = api.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "smith@example.com", "password": "nope-nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid Credentials", env.Error)

	rec, env = api.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "ghost@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User does not exist", env.Error)

	rec, _ = api.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "smith@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = api.do(http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me apiUser
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, user.ID, me.ID)

	rec, env = api.do(http.MethodGet, "/appointments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "No token provided", env.Error)

	rec, env = api.do(http.MethodGet, "/appointments", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", env.Error)
}

func TestAvailabilityScenarios(t *testing.T) {
	api := newTestAPI(t)
	profToken, prof := api.signup("Dr. Smith", "smith@example.com", "professor")
	studentToken, _ := api.signup("Student User", "student@example.com", "student")

	rec, env := api.publish(profToken, "2024-06-01", "09:00", "10:00")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Availability set successfully", env.Message)
	var slot apiSlot
	decodeData(t, env, "availability", &slot)
	assert.Equal(t, "09:00", slot.StartTime)
	assert.Equal(t, "10:00", slot.EndTime)

	rec, env = api.publish(profToken, "2024-06-01", "09:30", "10:30")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Time slot overlaps with existing availability", env.Error)

	rec, _ = api.publish(profToken, "2024-06-01", "10:00", "11:00")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, env = api.publish(studentToken, "2024-06-02", "09:00", "10:00")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Only professors can set availability", env.Error)

	slots := api.openSlots(studentToken, prof.ID)
	require.Len(t, slots, 2)
	for _, s := range slots {
		assert.False(t, s.IsBooked)
	}
}

func TestBookingLifecycle(t *testing.T) {
	api := newTestAPI(t)
	profToken, prof := api.signup("Dr. Smith", "smith@example.com", "professor")
	studentToken, student := api.signup("Student User", "student@example.com", "student")
	secondToken, _ := api.signup("Second Student", "second@example.com", "student")

	_, env := api.publish(profToken, "2024-06-01", "09:00", "10:00")
	var slot apiSlot
	decodeData(t, env, "availability", &slot)

	rec, env := api.do(http.MethodPost, "/appointment/"+slot.ID, profToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Only students can book appointments", env.Error)

	rec, env = api.do(http.MethodPost, "/appointment/"+slot.ID, studentToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Appointment booked successfully", env.Message)
	var appointment apiAppointment
	decodeData(t, env, "appointment", &appointment)
	assert.Equal(t, "booked", appointment.Status)
	assert.Equal(t, student.ID, appointment.StudentID)
	assert.Equal(t, prof.ID, appointment.ProfessorID)

	assert.Empty(t, api.openSlots(studentToken, prof.ID))

	rec, env = api.do(http.MethodPost, "/appointment/"+slot.ID, secondToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Slot unavailable", env.Error)

	rec, env = api.do(http.MethodGet, "/appointments", studentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []apiAppointment
	decodeData(t, env, "appointments", &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, "Dr. Smith", mine[0].Professor.Name)

	rec, env = api.do(http.MethodGet, "/appointments", profToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var theirs []apiAppointment
	decodeData(t, env, "appointments", &theirs)
	require.Len(t, theirs, 1)
	assert.Equal(t, "Student User", theirs[0].Student.Name)

	rec, env = api.do(http.MethodDelete, "/appointments/"+appointment.ID, studentToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Only professors can cancel appointments", env.Error)

	rec, env = api.do(http.MethodDelete, "/appointments/"+appointment.ID, profToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Appointment cancelled successfully", env.Message)

	slots := api.openSlots(studentToken, prof.ID)
	require.Len(t, slots, 1)
	assert.False(t, slots[0].IsBooked)

	rec, _ = api.do(http.MethodPost, "/appointment/"+slot.ID, secondToken, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, env = api.do(http.MethodDelete, "/appointments/missing", profToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Appointment not found", env.Error)
}

func TestConcurrentBookingThroughRouter(t *testing.T) {
	api := newTestAPI(t)
	profToken, _ := api.signup("Dr. Smith", "smith@example.com", "professor")
	_, env := api.publish(profToken, "2024-06-01", "09:00", "10:00")
	var slot apiSlot
	decodeData(t, env, "availability", &slot)

	const students = 8
	tokens := make([]string, students)
	for i := range tokens {
		tokens[i], _ = api.signup("Student", "student"+string(rune('a'+i))+"@example.com", "student")
	}

	codes := make(chan int, students)
	var wg sync.WaitGroup
	for _, token := range tokens {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/appointment/"+slot.ID, nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			api.router.ServeHTTP(rec, req)
			codes <- rec.Code
		}(token)
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for code := range codes {
		counts[code]++
	}
	assert.Equal(t, 1, counts[http.StatusCreated])
	assert.Equal(t, students-1, counts[http.StatusBadRequest])
}

func TestExportDownload(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.signup("Student User", "student@example.com", "student")

	rec, _ := api.do(http.MethodGet, "/appointments/export?format=csv", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "appointments_")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Date,Start,End"))

	rec, env := api.do(http.MethodGet, "/appointments/export?format=doc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)
}
