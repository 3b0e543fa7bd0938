// Package validate holds the pure input rules the conversation steps apply.
// Every function is stateless; corrective messages are what the actor sees
// when a step re-prompts.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"dutybot/internal/catalog"
	domainerrors "dutybot/pkg/domain-errors"
)

// nameToken accepts one word of a Ukrainian personal name: the Ukrainian
// alphabet plus apostrophes and hyphens. Латиниця is rejected on purpose.
var nameToken = regexp.MustCompile(`^[А-ЩЬЮЯҐІЇЄа-щьюяґіїє'ʼ-]+$`)

// datePattern accepts DD.MM or DD.MM.YYYY with optional zero padding.
var datePattern = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})(?:\.(\d{4}))?$`)

var urlPattern = regexp.MustCompile(`(?i)^https?://[^\s]+$`)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}

// imageHosts are the hosting services the deployment instructs actors to use.
var imageHosts = []string{"imgbb.com", "imgur.com", "postimg.cc", "ibb.co", "imageban.ru"}

const nameHint = "Ім'я та прізвище мають бути українською мовою, повністю.\n" +
	"Приклади: Олександр Іваненко, Анна-Марія Сидоренко.\nСпробуйте ще раз:"

// PersonName checks a full personal name: at least two whitespace-separated
// tokens, each at least two letters, Ukrainian alphabet only.
func PersonName(s string) error {
	words := strings.Fields(strings.TrimSpace(s))
	if len(words) < 2 {
		return domainerrors.New(domainerrors.CodeValidation,
			"Потрібно вказати ім'я та прізвище.\n"+nameHint)
	}
	for _, w := range words {
		if utf8.RuneCountInString(w) < 2 || !nameToken.MatchString(w) {
			return domainerrors.New(domainerrors.CodeValidation, nameHint)
		}
	}
	return nil
}

// RankedName strips a case-insensitive longest rank prefix against the
// catalog before applying the PersonName rule to the remainder. The rank is
// empty when the input carries none.
func RankedName(c *catalog.Catalog, s string) (rank, name string, err error) {
	rank, name, _ = c.LongestRankPrefix(s)
	if err := PersonName(name); err != nil {
		return "", "", err
	}
	return rank, name, nil
}

// Date accepts DD.MM or DD.MM.YYYY, zero padding optional, with day and
// month range checks. Year, when present, is taken as-is.
func Date(s string) error {
	m := datePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return domainerrors.New(domainerrors.CodeValidation,
			"Невірний формат дати. Використовуйте ДД.ММ.РРРР або ДД.ММ, наприклад 01.10.2025 або 1.10.\nСпробуйте ще раз:")
	}
	day := atoi2(m[1])
	month := atoi2(m[2])
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return domainerrors.New(domainerrors.CodeValidation,
			"Такої дати не існує. Перевірте день та місяць і спробуйте ще раз:")
	}
	return nil
}

func atoi2(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// ImageURL checks a single evidence link: http(s), and either an image file
// extension or one of the known image hosts.
func ImageURL(s string) error {
	u := strings.TrimSpace(s)
	if !urlPattern.MatchString(u) {
		return domainerrors.New(domainerrors.CodeValidation,
			fmt.Sprintf("Це не схоже на посилання: %s", u))
	}
	lower := strings.ToLower(u)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return nil
		}
	}
	for _, host := range imageHosts {
		if strings.Contains(lower, host) {
			return nil
		}
	}
	return domainerrors.New(domainerrors.CodeValidation,
		fmt.Sprintf("Посилання не веде на зображення: %s\nЗавантажте скріншот на imgbb.com або imgur.com та надішліть пряме посилання.", u))
}

// EvidenceLines splits a message into candidate links and validates each.
// All lines must be valid; the caller accumulates them toward the minimum.
func EvidenceLines(text string) ([]string, error) {
	var urls []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := ImageURL(line); err != nil {
			return nil, err
		}
		urls = append(urls, line)
	}
	if len(urls) == 0 {
		return nil, domainerrors.New(domainerrors.CodeValidation,
			"Надішліть посилання на зображення, кожне з нового рядка.")
	}
	return urls, nil
}

// EvidenceShortfall builds the partial-submission message: how many more
// items the step still needs.
func EvidenceShortfall(have, required int) error {
	missing := required - have
	return domainerrors.New(domainerrors.CodeValidation,
		fmt.Sprintf("Отримано %d з %d. Надішліть ще %d посилання на скріншоти.", have, required, missing))
}
