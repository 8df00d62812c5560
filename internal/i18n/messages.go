package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys used by the command line. English text is the key itself.
const (
	MsgFetched     = "Fetched %d IPv4 and %d IPv6 edge addresses from %s\n"
	MsgNoDrift     = "No drift: firewall matches %d edge addresses\n"
	MsgDrift       = "Drift: %d to add, %d to remove\n"
	MsgConfigOK    = "Configuration %s is valid\n"
	MsgNoHistory   = "No runs recorded\n"
	MsgWatching    = "Watching: first run now, next at %s\n"
	MsgIPv6Blocked = "IPv6 is blocked on ports %s\n"
)

func init() {
	set := func(key, msg string) {
		_ = message.SetString(language.German, key, msg)
	}
	set(MsgFetched, "%d IPv4- und %d IPv6-Edge-Adressen von %s abgerufen\n")
	set(MsgNoDrift, "Keine Abweichung: Firewall entspricht %d Edge-Adressen\n")
	set(MsgDrift, "Abweichung: %d hinzuzufügen, %d zu entfernen\n")
	set(MsgConfigOK, "Konfiguration %s ist gültig\n")
	set(MsgNoHistory, "Keine Läufe aufgezeichnet\n")
	set(MsgWatching, "Überwachung: erster Lauf jetzt, nächster um %s\n")
	set(MsgIPv6Blocked, "IPv6 ist auf den Ports %s gesperrt\n")
}
