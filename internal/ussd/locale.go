package ussd

import (
	"github.com/BTreeMap/WapiDaktari/internal/models"
)

// Locale is a supported menu language.
type Locale int

const (
	LocaleEnglish Locale = iota + 1
	LocaleSwahili
)

// localeFromToken resolves the language menu choice.
func localeFromToken(tok string) (Locale, bool) {
	switch tok {
	case "1":
		return LocaleEnglish, true
	case "2":
		return LocaleSwahili, true
	}
	return 0, false
}

// Toggle returns the other supported locale.
func (l Locale) Toggle() Locale {
	if l == LocaleSwahili {
		return LocaleEnglish
	}
	return LocaleSwahili
}

func (l Locale) String() string {
	if l == LocaleSwahili {
		return "sw"
	}
	return "en"
}

// languageScreen is shown before a locale exists, so it is bilingual.
const languageScreen = "Welcome to Wapi Daktari / Karibu Wapi Daktari\n1. English\n2. Kiswahili"

type catalog struct {
	mainMenu       string
	selectHospital string
	selectDept     string
	dateMenu       string
	dateEntry      string
	back           string
	answer         string // hospital, department, date, block, minutes, congestion
	invalidInput   string
	invalidDate    string
	noPrediction   string
	unavailable    string
	smsPrefix      string
	blocks         map[models.TimeBlock]string
	congestion     map[string]string
}

var catalogs = map[Locale]catalog{
	LocaleEnglish: {
		mainMenu:       "Wapi Daktari\n1. Check best time to visit\n2. Change language",
		selectHospital: "Select hospital:",
		selectDept:     "Select department:",
		dateMenu:       "Select date:\n1. Today\n2. Tomorrow\n3. Day after tomorrow\n4. Enter specific date",
		dateEntry:      "Enter date (YYYY-MM-DD):",
		back:           "0. Back",
		answer:         "Best time at %s (%s) on %s: %s\nExpected wait: %.0f minutes\nCongestion: %s",
		invalidInput:   "Invalid choice. Please try again.",
		invalidDate:    "Invalid date. Use the format YYYY-MM-DD.",
		noPrediction:   "No prediction available for that day.",
		unavailable:    "Service unavailable. Please try again later.",
		smsPrefix:      "Wapi Daktari: ",
		blocks: map[models.TimeBlock]string{
			models.TimeBlockMorning:   "Morning",
			models.TimeBlockAfternoon: "Afternoon",
			models.TimeBlockEvening:   "Evening",
		},
		congestion: map[string]string{"Low": "Low", "Medium": "Medium", "High": "High"},
	},
	LocaleSwahili: {
		mainMenu:       "Wapi Daktari\n1. Angalia wakati bora wa kwenda\n2. Badilisha lugha",
		selectHospital: "Chagua hospitali:",
		selectDept:     "Chagua idara:",
		dateMenu:       "Chagua tarehe:\n1. Leo\n2. Kesho\n3. Kesho kutwa\n4. Weka tarehe maalum",
		dateEntry:      "Weka tarehe (YYYY-MM-DD):",
		back:           "0. Rudi",
		answer:         "Wakati bora %s (%s) tarehe %s: %s\nMuda wa kusubiri: dakika %.0f\nMsongamano: %s",
		invalidInput:   "Chaguo si sahihi. Tafadhali jaribu tena.",
		invalidDate:    "Tarehe si sahihi. Tumia muundo YYYY-MM-DD.",
		noPrediction:   "Hakuna utabiri kwa siku hiyo.",
		unavailable:    "Huduma haipatikani. Tafadhali jaribu tena baadaye.",
		smsPrefix:      "Wapi Daktari: ",
		blocks: map[models.TimeBlock]string{
			models.TimeBlockMorning:   "Asubuhi",
			models.TimeBlockAfternoon: "Mchana",
			models.TimeBlockEvening:   "Jioni",
		},
		congestion: map[string]string{"Low": "Chini", "Medium": "Wastani", "High": "Juu"},
	},
}

func (l Locale) text() catalog {
	if c, ok := catalogs[l]; ok {
		return c
	}
	return catalogs[LocaleEnglish]
}

// blockName localizes a time block, passing unknown blocks through.
func (c catalog) blockName(b models.TimeBlock) string {
	if name, ok := c.blocks[b]; ok {
		return name
	}
	return string(b)
}

// congestionName localizes a congestion label. Raw or unseen labels are shown as-is.
func (c catalog) congestionName(label string) string {
	if name, ok := c.congestion[label]; ok {
		return name
	}
	return label
}
