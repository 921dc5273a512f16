package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/bus"
	"github.com/aatumaykin/shuttlewatch/internal/job"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/google/uuid"
)

// Button actions. Callback data is "<token>:<action>:<arg>"; the token ties a
// press to the menu it was shown on.
const (
	actionOrigin     = "o"
	actionMonth      = "m"
	actionDate       = "d"
	actionSlot       = "t"
	actionPassengers = "p"
	actionCancel     = "c"
	actionNone       = "x"
)

const (
	monthArgLayout = "2006-01"
	dateArgLayout  = "2006-01-02"
)

type wizardStep int

const (
	stepOrigin wizardStep = iota
	stepDate
	stepSlot
	stepPassengers
)

// wizard is one requester's in-progress /start menu.
type wizard struct {
	token  string
	handle string // correlation id of the menu message, rewritten at each step
	step   wizardStep
	origin job.Station
	dest   job.Station
	month  time.Time
	date   time.Time
	slot   string
}

func (w *wizard) data(action, arg string) string {
	return w.token + ":" + action + ":" + arg
}

func (h *Handler) startWizard(msg bus.InboundMessage) error {
	w := &wizard{
		token:  uuid.NewString()[:8],
		handle: uuid.NewString(),
		step:   stepOrigin,
	}
	h.mu.Lock()
	h.wizards[msg.UserID] = w
	h.mu.Unlock()

	out := bus.NewOutboundMessage(msg.ChannelType, msg.UserID, msgChooseOrigin, w.handle)
	out.InlineKeyboard = h.originKeyboard(w)
	return h.messageBus.PublishOutbound(*out)
}

// handleCallback advances the requester's menu by one button press.
func (h *Handler) handleCallback(ctx context.Context, msg bus.InboundMessage) error {
	token, action, arg, ok := parseCallback(msg.Content)
	if !ok {
		return nil
	}
	h.mu.Lock()
	w := h.wizards[msg.UserID]
	h.mu.Unlock()
	if w == nil || w.token != token {
		return h.reply(msg, msgMenuExpired)
	}

	switch action {
	case actionNone:
		return nil
	case actionCancel:
		h.endWizard(msg.UserID, w)
		return h.editMenu(msg, w, msgMenuCancelled, nil)
	case actionOrigin:
		return h.pickOrigin(msg, w, arg)
	case actionMonth:
		return h.pickMonth(msg, w, arg)
	case actionDate:
		return h.pickDate(msg, w, arg)
	case actionSlot:
		return h.pickSlot(msg, w, arg)
	case actionPassengers:
		return h.pickPassengers(ctx, msg, w, arg)
	}
	return nil
}

func (h *Handler) pickOrigin(msg bus.InboundMessage, w *wizard, arg string) error {
	if w.step != stepOrigin {
		return nil
	}
	origin, ok := h.catalogue.Station(arg)
	if !ok {
		return nil
	}
	dest, _ := h.catalogue.Destination(origin.Name)
	w.origin, w.dest = origin, dest
	w.month = firstOfMonth(h.today())
	w.step = stepDate
	return h.editMenu(msg, w, h.dateText(w), h.calendarKeyboard(w))
}

func (h *Handler) pickMonth(msg bus.InboundMessage, w *wizard, arg string) error {
	if w.step != stepDate {
		return nil
	}
	month, err := time.ParseInLocation(monthArgLayout, arg, h.location)
	if err != nil || month.Before(firstOfMonth(h.today())) {
		return nil
	}
	w.month = month
	return h.editMenu(msg, w, h.dateText(w), h.calendarKeyboard(w))
}

func (h *Handler) pickDate(msg bus.InboundMessage, w *wizard, arg string) error {
	if w.step != stepDate {
		return nil
	}
	date, err := time.ParseInLocation(dateArgLayout, arg, h.location)
	if err != nil || date.Before(h.today()) {
		return nil
	}
	w.date = date
	w.step = stepSlot
	return h.editMenu(msg, w, msgChooseTime, h.slotKeyboard(w))
}

func (h *Handler) pickSlot(msg bus.InboundMessage, w *wizard, arg string) error {
	if w.step != stepSlot || !h.catalogue.HasSlot(w.origin.Name, arg) {
		return nil
	}
	w.slot = arg
	w.step = stepPassengers
	return h.editMenu(msg, w, msgChoosePassengers, h.passengerKeyboard(w))
}

func (h *Handler) pickPassengers(ctx context.Context, msg bus.InboundMessage, w *wizard, arg string) error {
	if w.step != stepPassengers {
		return nil
	}
	passengers, err := strconv.Atoi(arg)
	if err != nil {
		return nil
	}

	j, err := job.New(h.catalogue, w.origin.Name, w.date, w.slot, passengers)
	if err == nil {
		j, err = h.scheduler.CreateJob(ctx, msg.UserID, j)
	}
	var verr *job.ValidationError
	switch {
	case errors.As(err, &verr):
		return h.editMenu(msg, w, "❌ "+verr.Error(), h.passengerKeyboard(w))
	case err != nil:
		h.logger.ErrorCtx(ctx, "failed to create job", err,
			logger.Field{Key: "owner", Value: msg.UserID})
		h.endWizard(msg.UserID, w)
		return h.editMenu(msg, w, msgFailed, nil)
	}

	h.endWizard(msg.UserID, w)
	return h.editMenu(msg, w, MonitoringSummary(j), nil)
}

// endWizard forgets w unless a newer menu already replaced it.
func (h *Handler) endWizard(owner string, w *wizard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.wizards[owner] == w {
		delete(h.wizards, owner)
	}
}

func (h *Handler) editMenu(msg bus.InboundMessage, w *wizard, text string, keyboard *bus.InlineKeyboard) error {
	out := bus.NewEditMessage(msg.ChannelType, msg.UserID, text, uuid.NewString(), w.handle)
	out.InlineKeyboard = keyboard
	return h.messageBus.PublishOutbound(*out)
}

func (h *Handler) dateText(w *wizard) string {
	return fmt.Sprintf("Origin: %s\nDestination: %s\n\n%s", w.origin.Name, w.dest.Name, msgChooseDate)
}

func (h *Handler) today() time.Time {
	now := h.now().In(h.location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.location)
}

func (h *Handler) originKeyboard(w *wizard) *bus.InlineKeyboard {
	kb := &bus.InlineKeyboard{}
	for _, st := range h.catalogue.Stations {
		kb.Rows = append(kb.Rows, []bus.InlineButton{{Text: st.Name, Data: w.data(actionOrigin, st.Name)}})
	}
	kb.Rows = append(kb.Rows, h.cancelRow(w))
	return kb
}

var weekdays = []string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

// calendarKeyboard lays out w.month Monday first. Days before today cannot be
// picked and the month cannot be paged back past the current one.
func (h *Handler) calendarKeyboard(w *wizard) *bus.InlineKeyboard {
	none := w.data(actionNone, "")
	kb := &bus.InlineKeyboard{Rows: [][]bus.InlineButton{
		{{Text: w.month.Format("January 2006"), Data: none}},
	}}

	header := make([]bus.InlineButton, len(weekdays))
	for i, d := range weekdays {
		header[i] = bus.InlineButton{Text: d, Data: none}
	}
	kb.Rows = append(kb.Rows, header)

	today := h.today()
	offset := (int(w.month.Weekday()) + 6) % 7
	days := time.Date(w.month.Year(), w.month.Month()+1, 0, 0, 0, 0, 0, h.location).Day()

	row := make([]bus.InlineButton, 0, 7)
	for i := 0; i < offset; i++ {
		row = append(row, bus.InlineButton{Text: " ", Data: none})
	}
	for day := 1; day <= days; day++ {
		date := time.Date(w.month.Year(), w.month.Month(), day, 0, 0, 0, 0, h.location)
		if date.Before(today) {
			row = append(row, bus.InlineButton{Text: "·", Data: none})
		} else {
			row = append(row, bus.InlineButton{Text: strconv.Itoa(day), Data: w.data(actionDate, date.Format(dateArgLayout))})
		}
		if len(row) == 7 {
			kb.Rows = append(kb.Rows, row)
			row = make([]bus.InlineButton, 0, 7)
		}
	}
	if len(row) > 0 {
		for len(row) < 7 {
			row = append(row, bus.InlineButton{Text: " ", Data: none})
		}
		kb.Rows = append(kb.Rows, row)
	}

	prev := bus.InlineButton{Text: " ", Data: none}
	if w.month.After(firstOfMonth(today)) {
		prev = bus.InlineButton{Text: "«", Data: w.data(actionMonth, w.month.AddDate(0, -1, 0).Format(monthArgLayout))}
	}
	next := bus.InlineButton{Text: "»", Data: w.data(actionMonth, w.month.AddDate(0, 1, 0).Format(monthArgLayout))}
	kb.Rows = append(kb.Rows, []bus.InlineButton{prev, next}, h.cancelRow(w))
	return kb
}

func (h *Handler) slotKeyboard(w *wizard) *bus.InlineKeyboard {
	buttons := make([]bus.InlineButton, len(w.origin.Slots))
	for i, slot := range w.origin.Slots {
		buttons[i] = bus.InlineButton{Text: slot, Data: w.data(actionSlot, slot)}
	}
	return &bus.InlineKeyboard{Rows: append(chunk(buttons, 3), h.cancelRow(w))}
}

func (h *Handler) passengerKeyboard(w *wizard) *bus.InlineKeyboard {
	buttons := make([]bus.InlineButton, h.catalogue.MaxPassengers)
	for i := range buttons {
		n := strconv.Itoa(i + 1)
		buttons[i] = bus.InlineButton{Text: n, Data: w.data(actionPassengers, n)}
	}
	return &bus.InlineKeyboard{Rows: append(chunk(buttons, 3), h.cancelRow(w))}
}

func (h *Handler) cancelRow(w *wizard) []bus.InlineButton {
	return []bus.InlineButton{{Text: "✖ Cancel", Data: w.data(actionCancel, "")}}
}

func chunk(buttons []bus.InlineButton, size int) [][]bus.InlineButton {
	var rows [][]bus.InlineButton
	for len(buttons) > size {
		rows = append(rows, buttons[:size])
		buttons = buttons[size:]
	}
	if len(buttons) > 0 {
		rows = append(rows, buttons)
	}
	return rows
}

// parseCallback splits "<token>:<action>:<arg>". The arg may itself contain
// colons, as departure slots do.
func parseCallback(data string) (token, action, arg string, ok bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
