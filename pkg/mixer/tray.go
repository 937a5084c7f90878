package mixer

import (
	"os"

	"github.com/getlantern/systray"

	"github.com/stalexteam/deej_mixer/pkg/mixer/util"
)

func (m *Mixer) initializeTray(onDone func()) {
	logger := m.logger.Named("tray")

	onReady := func() {
		logger.Debug("Tray instance ready")

		systray.SetTitle("Mixer")
		systray.SetTooltip("Mixer")

		editConfig := systray.AddMenuItem("Edit configuration", "Open config file in a text editor")
		refreshStreams := systray.AddMenuItem("Re-scan audio streams", "Refresh streams and devices right away")

		var dumpStack *systray.MenuItem
		if m.verbose {
			dumpStack = systray.AddMenuItem("Dump stack trace", "Output all goroutines stack trace to log")
		}

		if m.version != "" {
			systray.AddSeparator()
			versionInfo := systray.AddMenuItem(m.version, "")
			versionInfo.Disable()
		}

		systray.AddSeparator()
		quit := systray.AddMenuItem("Quit", "Stop the mixer and quit")

		go func() {
			for {
				select {

				case <-quit.ClickedCh:
					logger.Info("Quit menu item clicked, stopping")

					m.signalStop()

				case <-editConfig.ClickedCh:
					logger.Info("Edit config menu item clicked, opening config for editing")

					if !util.FileExists(userConfigFilepath) {
						m.notifier.Notify("No configuration file!", "Create "+userConfigFilepath+" next to the mixer to change its settings.")
						continue
					}

					editor := "xdg-open"
					if editorEnv := os.Getenv("EDITOR"); editorEnv != "" {
						editor = editorEnv
					}

					if err := util.OpenExternal(logger, editor, userConfigFilepath); err != nil {
						logger.Warnw("Failed to open config file for editing", "error", err)
					}

				case <-refreshStreams.ClickedCh:
					logger.Info("Refresh streams menu item clicked, triggering a refresh")

					m.send(refreshMsg{})
				}
			}
		}()

		if dumpStack != nil {
			go func() {
				for {
					<-dumpStack.ClickedCh
					logger.Info("Dump stack trace menu item clicked, outputting all goroutines stack trace")
					util.DumpAllGoroutines(logger)
				}
			}()
		}

		// actually start the main runtime
		onDone()
	}

	onExit := func() {
		logger.Debug("Tray exited")
	}

	logger.Debug("Running in tray")
	systray.Run(onReady, onExit)
}

func (m *Mixer) stopTray() {
	m.logger.Debug("Quitting tray")
	systray.Quit()
}
