package config

// Source kinds with a built-in adapter.
const (
	KindMunicipal  = "municipal"
	KindNuliga     = "nuliga"
	KindLigaportal = "ligaportal"
	KindKinderwelt = "kinderwelt"
)

// SourceConfig describes one event source. Empty fields are filled from the
// defaults of its kind during validation.
type SourceConfig struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	StartURL string `yaml:"start_url"`
	BaseURL  string `yaml:"base_url"`
	Disabled bool   `yaml:"disabled"`
	MaxPages int    `yaml:"max_pages"`

	FixedLocation string   `yaml:"fixed_location"`
	FixedTags     []string `yaml:"fixed_tags"`
	DefaultImage  string   `yaml:"default_image"`

	// Municipal calendar.
	TitleTags           []string `yaml:"title_tags"`
	TitleSeparator      string   `yaml:"title_separator"`
	SubtitleBoilerplate []string `yaml:"subtitle_boilerplate"`
	MinTagLength        int      `yaml:"min_tag_length"`

	// Handball schedule.
	AgeClassWhitelist []string `yaml:"age_class_whitelist"`

	// Football fixtures.
	HomeTeamFilter []string `yaml:"home_team_filter"`
	League         string   `yaml:"league"`

	// Community-club blog. ExtractInstruction overrides the built-in prompt
	// used to read events out of the articles.
	ExtractInstruction string `yaml:"extract_instruction"`

	// RequiredFields overrides gate.required_fields for this source.
	RequiredFields []string `yaml:"required_fields"`
}

// DefaultSources returns the stock source set used when the configuration
// lists none.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{Name: "korneuburg", Kind: KindMunicipal},
		{Name: "handball", Kind: KindNuliga},
		{Name: "fussball", Kind: KindLigaportal},
		{Name: "kinderwelt", Kind: KindKinderwelt},
	}
}

// applyDefaults fills empty fields from the defaults of the source kind.
func (s *SourceConfig) applyDefaults() {
	switch s.Kind {
	case KindMunicipal:
		setString(&s.BaseURL, "https://www.korneuburg.gv.at")
		setString(&s.StartURL, "https://www.korneuburg.gv.at/Stadt/Kultur/Veranstaltungskalender")
		setString(&s.TitleSeparator, ":")
		setList(&s.TitleTags, []string{
			"Shopping-Event", "Kultur- und Musiktage", "Kabarett-Picknick", "Werftbühne",
			"Ausstellung", "Sonderausstellung", "Vernissage", "Lesung", "Konzert",
			"Flohmarkt", "Kindermaskenball",
		})
		setList(&s.SubtitleBoilerplate, []string{
			"Veranstaltungen - Rathaus", "Veranstaltungen - Stadt", "Veranstaltungen -",
		})
		setList(&s.RequiredFields, []string{"time_of_day"})
	case KindNuliga:
		setString(&s.BaseURL, "https://oehb-handball.liga.nu")
		setString(&s.StartURL, "https://oehb-handball.liga.nu/cgi-bin/WebObjects/nuLigaHBAT.woa/wa/courtInfo?federation=%C3%96HB&location=18471")
		setString(&s.FixedLocation, "Franz Guggenberger Sporthalle")
		setList(&s.FixedTags, []string{"Sport", "Handball"})
		setList(&s.AgeClassWhitelist, []string{"WHA1", "WHA2", "WHA1U18", "HLA-HLA2-RL"})
		if s.MaxPages == 0 {
			s.MaxPages = 12
		}
	case KindLigaportal:
		setString(&s.BaseURL, "https://ticker.ligaportal.at")
		setString(&s.StartURL, "https://ticker.ligaportal.at/mannschaft/1295/sk-korneuburg/spielplan")
		setString(&s.FixedLocation, "Ratgeber-Stadion Korneuburg")
		setList(&s.FixedTags, []string{"Sport", "Fussball", "1. Landesliga"})
		setList(&s.HomeTeamFilter, []string{"Korneuburg", "Korneuburg/Stetten"})
		setString(&s.DefaultImage, "https://static.ligaportal.at/images/club/club-1179-large.png")
		setString(&s.League, "1. Landesliga")
	case KindKinderwelt:
		setString(&s.BaseURL, "https://kinderwelt-korneuburg.at")
		setString(&s.StartURL, "https://kinderwelt-korneuburg.at/index.php?option=com_content&view=featured&Itemid=110")
		setString(&s.FixedLocation, "Korneuburg")
		setList(&s.FixedTags, []string{"Kinder", "Familie", "Freizeit"})
		if s.MaxPages == 0 {
			s.MaxPages = 1
		}
	}
	if s.MinTagLength == 0 {
		s.MinTagLength = 3
	}
}

func setString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func setList(dst *[]string, v []string) {
	if len(*dst) == 0 {
		*dst = v
	}
}

// WithDefaults returns a copy of s with empty fields filled from its kind.
func (s SourceConfig) WithDefaults() SourceConfig {
	s.applyDefaults()
	return s
}
