package lynx

import "sort"

// Model is a focuser type the hub can drive.
type Model struct {
	Code     string
	Name     string
	Absolute bool
}

var models = map[string]Model{
	"OA": {"OA", "Optec TCF-Lynx 2", true},
	"OB": {"OB", "Optec TCF-Lynx 3", true},
	"OC": {"OC", "Optec TCF-Lynx 2 with Extended Travel", true},
	"OD": {"OD", "Optec Fast Focus Secondary Focuser", true},
	"OE": {"OE", "Optec TCF-S Classic converted", true},
	"OF": {"OF", "Optec TCF-S3 Classic converted", true},
	"OG": {"OG", "Optec Gemini", true},
	"FA": {"FA", "FocusLynx QuickSync FT Hi-Torque", true},
	"FB": {"FB", "FocusLynx QuickSync FT Hi-Speed", true},
	"FC": {"FC", "FocusLynx QuickSync SV", true},
	"FD": {"FD", "DirectSync TEC with bipolar motor", true},
	"FE": {"FE", "FocusLynx QuickSync Long Travel Hi-Torque", true},
	"FF": {"FF", "FocusLynx QuickSync Long Travel Hi-Speed", true},
	"SO": {"SO", "Starlight Focuser FTM with MicroTouch", false},
	"SP": {"SP", "Starlight Focuser AP27FOC3E", false},
	"SQ": {"SQ", "Starlight Focuser Handy Stepper", false},
	"TA": {"TA", "Televue Focuser", false},
	"ZZ": {"ZZ", "No Focuser", false},
}

// LookupModel returns the model registered under a device type code.
func LookupModel(code string) (Model, bool) {
	m, ok := models[code]
	return m, ok
}

// Models returns every known model sorted by code.
func Models() []Model {
	list := make([]Model, 0, len(models))
	for _, m := range models {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return list
}
