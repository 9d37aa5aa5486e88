package event

// Names of events frequently posted by platform observers. The bus never
// posts these itself; whatever watches the platform signal does.
const (
	// OrientationChanged: the display switched between portrait and landscape.
	OrientationChanged = "common#orientation_changed"

	// NetworkOn: network connectivity became available.
	NetworkOn = "common#network_on"

	// NetworkOff: network connectivity was lost.
	NetworkOff = "common#network_off"

	// KeyboardShown: the on-screen keyboard was shown.
	KeyboardShown = "common#keyboard_shown"

	// KeyboardHidden: the on-screen keyboard was hidden.
	KeyboardHidden = "common#keyboard_hidden"

	// GoToBackground: the application left the foreground.
	GoToBackground = "common#go_to_background"

	// GoToForeground: the application came to the foreground.
	GoToForeground = "common#go_to_foreground"

	// ActivityResumed: a screen was resumed. The screen is the first argument.
	ActivityResumed = "common#activity_resumed"
)

// CommonEvents lists every common event name.
var CommonEvents = []string{
	OrientationChanged,
	NetworkOn,
	NetworkOff,
	KeyboardShown,
	KeyboardHidden,
	GoToBackground,
	GoToForeground,
	ActivityResumed,
}
