package entity

// LayerWhitelist ограничивает проверку перечисленными слоями; пустой список не ограничивает.
type LayerWhitelist []int

// Allows проверяет, разрешена ли проверка слоя.
func (w LayerWhitelist) Allows(layerIndex int) bool {
	if len(w) == 0 {
		return true
	}
	for _, i := range w {
		if i == layerIndex {
			return true
		}
	}
	return false
}

// IslandDetectionConfiguration настройки поиска островов.
type IslandDetectionConfiguration struct {
	Enabled bool `yaml:"enabled"`
	// EnhancedDetection перепроверяет частично опёртые острова как нависания.
	EnhancedDetection  bool           `yaml:"enhanced_detection"`
	AllowDiagonalBonds bool           `yaml:"allow_diagonal_bonds"`
	BinaryThreshold    uint8          `yaml:"binary_threshold"`
	WhiteListLayers    LayerWhitelist `yaml:"white_list_layers" validate:"omitempty,dive,gte=0"`

	RequiredAreaToProcessCheck            int     `yaml:"required_area_to_process_check" validate:"gte=0"`
	RequiredPixelBrightnessToProcessCheck uint8   `yaml:"required_pixel_brightness_to_process_check"`
	RequiredPixelsToSupport               int     `yaml:"required_pixels_to_support" validate:"gte=0"`
	RequiredPixelsToSupportMultiplier     float64 `yaml:"required_pixels_to_support_multiplier" validate:"gte=0,lte=1"`
	RequiredPixelBrightnessToSupport      uint8   `yaml:"required_pixel_brightness_to_support"`
}

// OverhangDetectionConfiguration настройки поиска нависаний.
type OverhangDetectionConfiguration struct {
	Enabled                  bool           `yaml:"enabled"`
	IndependentFromIslands   bool           `yaml:"independent_from_islands"`
	WhiteListLayers          LayerWhitelist `yaml:"white_list_layers" validate:"omitempty,dive,gte=0"`
	RequiredPixelsToConsider int            `yaml:"required_pixels_to_consider" validate:"gte=1"`
	ErodeIterations          int            `yaml:"erode_iterations" validate:"gte=0,lte=255"`
}

// ResinTrapDetectionConfiguration настройки поиска ловушек смолы и присосок.
type ResinTrapDetectionConfiguration struct {
	Enabled                       bool    `yaml:"enabled"`
	BinaryThreshold               uint8   `yaml:"binary_threshold"`
	RequiredAreaToProcessCheck    float64 `yaml:"required_area_to_process_check" validate:"gte=0"`
	RequiredBlackPixelsToDrain    int     `yaml:"required_black_pixels_to_drain" validate:"gte=1"`
	MaximumPixelBrightnessToDrain uint8   `yaml:"maximum_pixel_brightness_to_drain"`
	DetectSuctionCups             bool    `yaml:"detect_suction_cups"`
	// RequiredAreaToConsiderSuctionCup обычно заметно больше RequiredAreaToProcessCheck.
	RequiredAreaToConsiderSuctionCup float64 `yaml:"required_area_to_consider_suction_cup" validate:"gtefield=RequiredAreaToProcessCheck"`
	StartLayerIndex                  int     `yaml:"start_layer_index" validate:"gte=0"`
}

// TouchingBoundDetectionConfiguration настройки поиска касания границ платформы.
type TouchingBoundDetectionConfiguration struct {
	Enabled                bool  `yaml:"enabled"`
	MinimumPixelBrightness uint8 `yaml:"minimum_pixel_brightness"`
	MarginLeft             int   `yaml:"margin_left" validate:"gte=0"`
	MarginTop              int   `yaml:"margin_top" validate:"gte=0"`
	MarginRight            int   `yaml:"margin_right" validate:"gte=0"`
	MarginBottom           int   `yaml:"margin_bottom" validate:"gte=0"`
}

// PrintHeightDetectionConfiguration настройки проверки высоты печати.
type PrintHeightDetectionConfiguration struct {
	Enabled bool    `yaml:"enabled"`
	Offset  float64 `yaml:"offset"`
}

// DetectionOptions неизменяемый набор настроек одного запуска детекции.
type DetectionOptions struct {
	Island        IslandDetectionConfiguration        `yaml:"island"`
	Overhang      OverhangDetectionConfiguration      `yaml:"overhang"`
	ResinTrap     ResinTrapDetectionConfiguration     `yaml:"resin_trap"`
	TouchingBound TouchingBoundDetectionConfiguration `yaml:"touching_bound"`
	PrintHeight   PrintHeightDetectionConfiguration   `yaml:"print_height"`
	EmptyLayers   bool                                `yaml:"empty_layers"`
	// Parallelism степень параллелизма: <=0 автоматически, иначе не больше числа ядер.
	Parallelism int `yaml:"parallelism"`
}

// DefaultDetectionOptions настройки по умолчанию.
func DefaultDetectionOptions() DetectionOptions {
	return DetectionOptions{
		Island: IslandDetectionConfiguration{
			Enabled:                               true,
			EnhancedDetection:                     true,
			BinaryThreshold:                       1,
			RequiredAreaToProcessCheck:            1,
			RequiredPixelBrightnessToProcessCheck: 1,
			RequiredPixelsToSupport:               10,
			RequiredPixelsToSupportMultiplier:     0.25,
			RequiredPixelBrightnessToSupport:      150,
		},
		Overhang: OverhangDetectionConfiguration{
			Enabled:                  true,
			IndependentFromIslands:   true,
			RequiredPixelsToConsider: 1,
			ErodeIterations:          40,
		},
		ResinTrap: ResinTrapDetectionConfiguration{
			Enabled:                          true,
			BinaryThreshold:                  127,
			RequiredAreaToProcessCheck:       17,
			RequiredBlackPixelsToDrain:       10,
			MaximumPixelBrightnessToDrain:    30,
			DetectSuctionCups:                true,
			RequiredAreaToConsiderSuctionCup: 10000,
		},
		TouchingBound: TouchingBoundDetectionConfiguration{
			Enabled:                true,
			MinimumPixelBrightness: 127,
			MarginLeft:             5,
			MarginTop:              5,
			MarginRight:            5,
			MarginBottom:           5,
		},
		PrintHeight: PrintHeightDetectionConfiguration{Enabled: true},
		EmptyLayers: true,
	}
}
