/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	clihander "github.com/apex/log/handlers/cli"
	"github.com/blacktop/grabkernel/internal/commands/extract"
	"github.com/blacktop/grabkernel/internal/device"
	"github.com/blacktop/grabkernel/internal/download"
	"github.com/blacktop/grabkernel/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// Verbose boolean flag for verbose logging
	Verbose bool
	// AppVersion stores the plugin's version
	AppVersion string
	// AppBuildTime stores the plugin's build time
	AppBuildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "grabkernel",
	Short:         "Download just the kernelcache for a device/build (without the multi-GB IPSW)",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Verbose {
			log.SetLevel(log.DebugLevel)
		}

		if viper.GetBool("research") {
			return fmt.Errorf("research kernels are not supported")
		}

		q := &download.Query{
			OS:     viper.GetString("os"),
			Device: viper.GetString("device"),
			Build:  viper.GetString("build"),
		}
		boardConfig := viper.GetString("board")

		// fall back to the host's own identity for anything not supplied
		var err error
		if len(q.Device) == 0 {
			if q.Device, err = device.ModelIdentifier(); err != nil {
				return fmt.Errorf("no --device given and %w", err)
			}
		}
		if len(boardConfig) == 0 {
			if boardConfig, err = device.BoardConfig(); err != nil {
				return fmt.Errorf("no --board given and %w", err)
			}
		}

		client := download.NewClient(&download.Config{
			Proxy:    viper.GetString("proxy"),
			Insecure: viper.GetBool("insecure"),
		})

		if viper.GetBool("latest") {
			if len(q.Build) > 0 {
				return fmt.Errorf("you cannot supply --build AND --latest (they are mutually exclusive)")
			}
			if q.Build, err = client.LatestBuild(q.OS, q.Device); err != nil {
				return fmt.Errorf("failed to get latest build for %s: %w", q.Device, err)
			}
		} else if len(q.Build) == 0 {
			if q.Build, err = device.Build(); err != nil {
				return fmt.Errorf("no --build given and %w", err)
			}
		}
		q.Model = q.Device

		log.WithFields(log.Fields{
			"device": q.Device,
			"board":  boardConfig,
			"build":  q.Build,
		}).Info("Getting Kernelcache")

		fw, err := client.Resolve(q)
		if err != nil {
			return err
		}

		log.Debug("Resolved firmware URL:")
		utils.Indent(log.Debug, 2)(fw.URL)
		if fw.IsOTA {
			utils.Indent(log.Debug, 2)("(OTA payload)")
		}

		out, err := extract.Kernelcache(&extract.Config{
			BoardConfig: boardConfig,
			URL:         fw.URL,
			IsOTA:       fw.IsOTA,
			Output:      viper.GetString("output"),
			Proxy:       viper.GetString("proxy"),
			Insecure:    viper.GetBool("insecure"),
		})
		if err != nil {
			return err
		}

		log.Infof("Created %s", out)

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	log.SetHandler(clihander.Default)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/grabkernel/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "V", false, "verbose output")

	rootCmd.Flags().StringP("device", "d", "", "device identifier (i.e. iPhone14,2); defaults to the host device")
	rootCmd.Flags().StringP("board", "b", "", "board config (i.e. D63AP); defaults to the host device")
	rootCmd.Flags().String("build", "", "build number (i.e. 21A5248v); defaults to the host OS build")
	rootCmd.Flags().String("os", "iOS", "OS to look up in the catalog (i.e. iOS, iPadOS, tvOS)")
	rootCmd.Flags().Bool("latest", false, "use the latest build the catalog knows for the device")
	rootCmd.Flags().StringP("output", "o", "kernelcache", "output file path")
	rootCmd.Flags().Bool("research", false, "download the research kernel (unsupported)")
	rootCmd.Flags().String("proxy", "", "HTTP/HTTPS proxy")
	rootCmd.Flags().Bool("insecure", false, "do not verify ssl certs")
	viper.BindPFlag("device", rootCmd.Flags().Lookup("device"))
	viper.BindPFlag("board", rootCmd.Flags().Lookup("board"))
	viper.BindPFlag("build", rootCmd.Flags().Lookup("build"))
	viper.BindPFlag("os", rootCmd.Flags().Lookup("os"))
	viper.BindPFlag("latest", rootCmd.Flags().Lookup("latest"))
	viper.BindPFlag("output", rootCmd.Flags().Lookup("output"))
	viper.BindPFlag("research", rootCmd.Flags().Lookup("research"))
	viper.BindPFlag("proxy", rootCmd.Flags().Lookup("proxy"))
	viper.BindPFlag("insecure", rootCmd.Flags().Lookup("insecure"))

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".grabkernel" (without extension).
		viper.AddConfigPath(filepath.Join(home, ".config", "grabkernel"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("grabkernel")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
