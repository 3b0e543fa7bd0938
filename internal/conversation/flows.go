package conversation

import (
	"fmt"
	"strings"

	"dutybot/internal/catalog"
	"dutybot/internal/event"
	"dutybot/internal/validate"
	domainerrors "dutybot/pkg/domain-errors"
)

// evidenceRequired is the minimum number of evidence items an application
// must carry before its evidence step completes.
const evidenceRequired = 2

// stepDone marks a terminal transition.
const stepDone Step = ""

// stepSpec declares one node of a step graph: how to prompt for it, how to
// validate and record its input, and where to go next. Transitions may
// branch on accumulated fields, and may point back at the same step while it
// is incomplete (evidence accumulation).
type stepSpec struct {
	prompt func(f *flows, st *State) (string, []string)
	handle func(f *flows, st *State, ev event.Event) error
	next   func(st *State) Step
}

type formSpec struct {
	entry Step
	steps map[Step]stepSpec
}

// flows binds the step graphs to the reference catalog they branch on.
type flows struct {
	cat   *catalog.Catalog
	specs map[FormKind]formSpec
}

func newFlows(cat *catalog.Catalog) *flows {
	f := &flows{cat: cat}
	f.specs = map[FormKind]formSpec{
		FormApplication:   applicationFlow(),
		FormLeaveRequest:  leaveFlow(),
		FormReprimand:     reprimandFlow(),
		FormPromotion:     promotionFlow(),
		FormProfileRefill: profileFlow(),
	}
	return f
}

func (f *flows) spec(form FormKind) (formSpec, bool) {
	s, ok := f.specs[form]
	return s, ok
}

func textOf(ev event.Event) (string, error) {
	if ev.Kind != event.KindText && ev.Kind != event.KindSelection {
		return "", domainerrors.New(domainerrors.CodeValidation,
			"Надішліть, будь ласка, текстове повідомлення.")
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return "", domainerrors.New(domainerrors.CodeValidation,
			"Повідомлення порожнє. Спробуйте ще раз:")
	}
	return text, nil
}

// chooseFrom matches input against the offered set, accepting either a
// selection event or the option typed out.
func chooseFrom(ev event.Event, offered []string) (string, error) {
	text, err := textOf(ev)
	if err != nil {
		return "", err
	}
	for _, opt := range offered {
		if strings.EqualFold(opt, text) {
			return opt, nil
		}
	}
	return "", domainerrors.New(domainerrors.CodeValidation,
		"Оберіть один із запропонованих варіантів:")
}

func applicationFlow() formSpec {
	return formSpec{
		entry: StepApplicationName,
		steps: map[Step]stepSpec{
			StepApplicationName: {
				prompt: func(_ *flows, _ *State) (string, []string) {
					return "📝 ПОДАЧА ЗАЯВКИ НА ДОСТУП\n\n" +
						"🔸 Крок 1 з 3: Введіть ваше ім'я та прізвище\n" +
						"(Тільки українською мовою, повне ім'я та прізвище)\n\n" +
						"Приклад: Іван Петренко", nil
				},
				handle: func(_ *flows, st *State, ev event.Event) error {
					text, err := textOf(ev)
					if err != nil {
						return err
					}
					if err := validate.PersonName(text); err != nil {
						return err
					}
					st.Fields[FieldName] = text
					return nil
				},
				next: func(*State) Step { return StepApplicationDepartment },
			},
			StepApplicationDepartment: {
				prompt: func(f *flows, _ *State) (string, []string) {
					return "🔸 Крок 2 з 3: Оберіть ваше управління НПУ:", f.cat.DepartmentTitles()
				},
				handle: func(f *flows, st *State, ev event.Event) error {
					title, err := chooseFrom(ev, f.cat.DepartmentTitles())
					if err != nil {
						return err
					}
					dept, _ := f.cat.DepartmentByTitle(title)
					st.Fields[FieldDepartment] = dept.Title
					return nil
				},
				next: func(*State) Step { return StepApplicationEvidence },
			},
			StepApplicationEvidence: {
				prompt: func(_ *flows, st *State) (string, []string) {
					if len(st.Evidence) > 0 {
						return domainerrors.MessageOf(validate.EvidenceShortfall(len(st.Evidence), evidenceRequired)), nil
					}
					return "🔸 Крок 3 з 3: Надішліть посилання на скріншоти\n\n" +
						"Потрібні документи:\n1. Скріншот посвідчення\n2. Скріншот планшету\n\n" +
						"Завантажте скріншоти на imgbb.com або imgur.com та надішліть прямі посилання, кожне з нового рядка.", nil
				},
				handle: func(_ *flows, st *State, ev event.Event) error {
					switch ev.Kind {
					case event.KindMediaItem:
						st.Evidence = append(st.Evidence, ev.MediaRef)
						return nil
					case event.KindText, event.KindSelection:
						urls, err := validate.EvidenceLines(ev.Text)
						if err != nil {
							return err
						}
						st.Evidence = append(st.Evidence, urls...)
						return nil
					default:
						return domainerrors.New(domainerrors.CodeValidation,
							"Надішліть посилання на зображення або самі зображення.")
					}
				},
				next: func(st *State) Step {
					if len(st.Evidence) < evidenceRequired {
						return StepApplicationEvidence
					}
					return stepDone
				},
			},
		},
	}
}

func leaveFlow() formSpec {
	return formSpec{
		entry: StepLeaveRecipient,
		steps: map[Step]stepSpec{
			StepLeaveRecipient: {
				prompt: func(_ *flows, _ *State) (string, []string) {
					return "📝 ПОДАЧА ЗАЯВИ НА НЕАКТИВ\n\n" +
						"🔸 Крок 1 з 3: Отримувач\n\n" +
						"Введіть ім'я та прізвище особи, якій надається неактив:\n" +
						"(Українською мовою, повне ім'я та прізвище)", nil
				},
				handle: func(_ *flows, st *State, ev event.Event) error {
					text, err := textOf(ev)
					if err != nil {
						return err
					}
					if err := validate.PersonName(text); err != nil {
						return err
					}
					st.Fields[FieldRecipient] = text
					return nil
				},
				next: func(*State) Step { return StepLeaveDuration },
			},
			StepLeaveDuration: {
				prompt: func(_ *flows, _ *State) (string, []string) {
					return "🔸 Крок 2 з 3: Термін неактиву\n\n" +
						"Введіть термін неактиву:\n(Наприклад: 2 тижні, 1 місяць, 3 дні)", nil
				},
				handle: func(_ *flows, st *State, ev event.Event) error {
					text, err := textOf(ev)
					if err != nil {
						return err
					}
					st.Fields[FieldDuration] = text
					return nil
				},
				next: func(*State) Step { return StepLeaveDepartment },
			},
			StepLeaveDepartment: {
				prompt: func(f *flows, _ *State) (string, []string) {
					return "🔸 Крок 3 з 3: Відділ\n\nОберіть відділ НПУ:", f.cat.DepartmentTitles()
				},
				handle: func(f *flows, st *State, ev event.Event) error {
					title, err := chooseFrom(ev, f.cat.DepartmentTitles())
					if err != nil {
						return err
					}
					dept, _ := f.cat.DepartmentByTitle(title)
					st.Fields[FieldDepartment] = dept.Title
					return nil
				},
				next: func(*State) Step { return stepDone },
			},
		},
	}
}

func reprimandFlow() formSpec {
	return formSpec{
		entry: StepReprimandOffense,
		steps: map[Step]stepSpec{
			StepReprimandOffense: {
				prompt: func(_ *flows, _ *State) (string, []string) {
					return "📝 ОФОРМЛЕННЯ ДОГАНИ\n\n" +
						"🔸 Крок 1 з 5: Опис порушення\n\n" +
						"Введіть, будь ласка, детальний опис порушення:", nil
				},
				handle: func(_ *flows, st *State, ev event.Event) error {
					text, err := textOf(ev)
					if err != nil {
						return err
					}
					st.Fields[FieldOffense] = text
					return nil
				},
				next: func(*State) Step { return StepReprimandDate },
			},
			StepReprimandDate: {
				prompt: func(_ *flows, _ *State) (string, []string) {
					return "🔸 Крок 2 з 5: Дата порушення\n\n" +
						"Вкажіть дату порушення у форматі ДД.ММ.РРРР або ДД.ММ:\n" +
						"Приклад: 01.10.2025 або 01.10", nil
				},
				handle: func(_ *flows, st *State, ev event.Event) error {
					text, err := textOf(ev)
					if err != nil {
						return err
					}
					if err := validate.Date(text); err != nil {
						return err
					}
					st.Fields[FieldDate] = text
					return nil
				},
				next: func(*State) Step { return StepReprimandOffender },
			},
			StepReprimandOffender: {
				prompt: func(_ *flows, _ *State) (string, []string) {
					return "🔸 Крок 3 з 5: Порушник\n\n" +
						"Введіть ім'я та прізвище особи, якій видається догана:", nil
				},
				handle: func(_ *flows, st *State, ev event.Event) error {
					text, err := textOf(ev)
					if err != nil {
						return err
					}
					if err := validate.PersonName(text); err != nil {
						return err
					}
					st.Fields[FieldOffender] = text
					return nil
				},
				next: func(*State) Step { return StepReprimandIssuer },
			},
			StepReprimandIssuer: {
				prompt: func(_ *flows, st *State) (string, []string) {
					if def := st.Fields[FieldIssuer]; def != "" {
						return fmt.Sprintf("🔸 Крок 4 з 5: Хто видав\n\n"+
							"За замовчуванням: %s\n\n"+
							"Введіть ім'я та прізвище особи, яка видає догану, або залиште як є:", def), []string{def}
					}
					return "🔸 Крок 4 з 5: Хто видав\n\n" +
						"Введіть ім'я та прізвище особи, яка видає догану:", nil
				},
				handle: func(_ *flows, st *State, ev event.Event) error {
					text, err := textOf(ev)
					if err != nil {
						return err
					}
					def := st.Fields[FieldIssuer]
					if def != "" && (strings.EqualFold(text, "за замовчуванням") || text == def) {
						return nil
					}
					if err := validate.PersonName(text); err != nil {
						return err
					}
					st.Fields[FieldIssuer] = text
					return nil
				},
				next: func(*State) Step { return StepReprimandPenalty },
			},
			StepReprimandPenalty: {
				prompt: func(_ *flows, _ *State) (string, []string) {
					return "🔸 Крок 5 з 5: Вид покарання\n\nОберіть вид покарання:", penaltyChoices
				},
				handle: func(_ *flows, st *State, ev event.Event) error {
					choice, err := chooseFrom(ev, penaltyChoices)
					if err != nil {
						return err
					}
					st.Fields[FieldPenalty] = choice
					return nil
				},
				next: func(*State) Step { return stepDone },
			},
		},
	}
}

var penaltyChoices = []string{"Догана", "Попередження"}

func promotionFlow() formSpec {
	return formSpec{
		entry: StepPromotionCandidate,
		steps: map[Step]stepSpec{
			StepPromotionCandidate: {
				prompt: func(_ *flows, _ *State) (string, []string) {
					return "📝 ПОДАННЯ НА ПІДВИЩЕННЯ\n\n" +
						"🔸 Крок 1 з 4: Кандидат\n\n" +
						"Введіть звання (за наявності), ім'я та прізвище кандидата:\n" +
						"Приклад: Капітан Марія Коваленко", nil
				},
				handle: func(f *flows, st *State, ev event.Event) error {
					text, err := textOf(ev)
					if err != nil {
						return err
					}
					rank, name, err := validate.RankedName(f.cat, text)
					if err != nil {
						return err
					}
					st.Fields[FieldCandidate] = name
					if rank != "" {
						st.Fields[FieldCandidateRank] = rank
					}
					return nil
				},
				next: func(*State) Step { return StepPromotionDepartment },
			},
			StepPromotionDepartment: {
				prompt: func(f *flows, _ *State) (string, []string) {
					return "🔸 Крок 2 з 4: Підрозділ\n\nОберіть управління НПУ кандидата:", f.cat.DepartmentTitles()
				},
				handle: func(f *flows, st *State, ev event.Event) error {
					title, err := chooseFrom(ev, f.cat.DepartmentTitles())
					if err != nil {
						return err
					}
					dept, _ := f.cat.DepartmentByTitle(title)
					st.Fields[FieldDepartment] = dept.Title
					return nil
				},
				next: func(*State) Step { return StepPromotionRank },
			},
			StepPromotionRank: {
				// The offered rank list branches on the chosen department.
				prompt: func(f *flows, st *State) (string, []string) {
					return "🔸 Крок 3 з 4: Звання\n\nОберіть звання, на яке подається кандидат:",
						f.ranksForState(st)
				},
				handle: func(f *flows, st *State, ev event.Event) error {
					choice, err := chooseFrom(ev, f.ranksForState(st))
					if err != nil {
						return err
					}
					if current := st.Fields[FieldCandidateRank]; current != "" {
						if f.cat.RankIndex(choice) <= f.cat.RankIndex(current) {
							return domainerrors.New(domainerrors.CodeValidation,
								fmt.Sprintf("Звання має бути вищим за поточне (%s). Оберіть інше:", current))
						}
					}
					st.Fields[FieldRequestedRank] = choice
					return nil
				},
				next: func(*State) Step { return StepPromotionJustification },
			},
			StepPromotionJustification: {
				prompt: func(_ *flows, _ *State) (string, []string) {
					return "🔸 Крок 4 з 4: Обґрунтування\n\n" +
						"Опишіть заслуги кандидата та підстави для підвищення:", nil
				},
				handle: func(_ *flows, st *State, ev event.Event) error {
					text, err := textOf(ev)
					if err != nil {
						return err
					}
					st.Fields[FieldJustification] = text
					return nil
				},
				next: func(*State) Step { return stepDone },
			},
		},
	}
}

func profileFlow() formSpec {
	return formSpec{
		entry: StepProfileName,
		steps: map[Step]stepSpec{
			StepProfileName: {
				prompt: func(_ *flows, _ *State) (string, []string) {
					return "📝 ЗАПОВНЕННЯ ПРОФІЛЮ\n\n" +
						"🔸 Крок 1 з 3: Введіть ваше ігрове ім'я та прізвище:", nil
				},
				handle: func(_ *flows, st *State, ev event.Event) error {
					text, err := textOf(ev)
					if err != nil {
						return err
					}
					if err := validate.PersonName(text); err != nil {
						return err
					}
					st.Fields[FieldInGameName] = text
					return nil
				},
				next: func(*State) Step { return StepProfileRank },
			},
			StepProfileRank: {
				prompt: func(f *flows, _ *State) (string, []string) {
					return "🔸 Крок 2 з 3: Оберіть ваше звання:", f.cat.Ranks
				},
				handle: func(f *flows, st *State, ev event.Event) error {
					choice, err := chooseFrom(ev, f.cat.Ranks)
					if err != nil {
						return err
					}
					st.Fields[FieldRank] = choice
					return nil
				},
				next: func(*State) Step { return StepProfileDepartment },
			},
			StepProfileDepartment: {
				prompt: func(f *flows, _ *State) (string, []string) {
					return "🔸 Крок 3 з 3: Оберіть ваше управління НПУ:", f.cat.DepartmentTitles()
				},
				handle: func(f *flows, st *State, ev event.Event) error {
					title, err := chooseFrom(ev, f.cat.DepartmentTitles())
					if err != nil {
						return err
					}
					dept, _ := f.cat.DepartmentByTitle(title)
					st.Fields[FieldDepartment] = dept.Title
					return nil
				},
				next: func(*State) Step { return stepDone },
			},
		},
	}
}

// ranksForState resolves the rank list the chosen department may grant.
func (f *flows) ranksForState(st *State) []string {
	if dept, ok := f.cat.DepartmentByTitle(st.Fields[FieldDepartment]); ok {
		return f.cat.RanksFor(dept)
	}
	return f.cat.Ranks
}
