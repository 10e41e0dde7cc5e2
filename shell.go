package main

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/CodedInternet/pitank/onboard"
	"github.com/CodedInternet/pitank/onboard/hardware"
	"github.com/abiosoft/ishell"
	"github.com/asdine/storm/v3"
)

// newShell builds the development shell used to drive the tank from a terminal.
func newShell(tank onboard.Tank, db *storm.DB) *ishell.Shell {
	commandNames := func([]string) (names []string) {
		for _, cmd := range tank.Commands() {
			names = append(names, cmd.Name)
		}
		return names
	}
	actuatorNames := func([]string) []string {
		return []string{string(onboard.Lift), string(onboard.Grabber)}
	}

	shell := ishell.New()
	shell.Println("pitank development shell")
	shell.ShowPrompt(true)

	shell.AddCmd(&ishell.Cmd{
		Name: "createoperator",
		Help: "createoperator <name> <password>",
		Func: func(c *ishell.Context) {
			// disable the '>>>' for cleaner same line input.
			c.ShowPrompt(false)
			defer c.ShowPrompt(true) // yes, revert when done.

			var name string
			if len(c.Args) >= 1 {
				name = c.Args[0]
			} else {
				c.Print("Name: ")
				name = c.ReadLine()
			}

			var password string
			if len(c.Args) >= 2 {
				password = c.Args[1]
			} else {
				c.Print("Password: ")
				password = c.ReadPassword()
			}

			if _, err := CreateOperator(db, name, password, true); err != nil {
				c.Err(err)
				return
			}
			c.Println("Operator created")
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "cmd",
		Completer: commandNames,
		Help:      "cmd <command>",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(errors.New("usage: cmd <command>"))
				return
			}
			applied, err := tank.DispatchCommand(context.Background(), c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%s applied: %t\n", c.Args[0], applied)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "commands",
		Help: "list the symbolic commands",
		Func: func(c *ishell.Context) {
			for _, cmd := range tank.Commands() {
				c.Printf("%-14s %s\n", cmd.Name, cmd.Description)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "speeds",
		Help: "speeds <left> <right>",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Err(errors.New("usage: speeds <left> <right>"))
				return
			}
			left, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			right, err := strconv.Atoi(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			if err := tank.SetSpeeds(left, right); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "angle",
		Completer: actuatorNames,
		Help:      "angle <lift|grabber> <degrees>",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Err(errors.New("usage: angle <lift|grabber> <degrees>"))
				return
			}
			angle, err := strconv.ParseFloat(c.Args[1], 64)
			if err != nil {
				c.Err(err)
				return
			}
			if err := tank.SetAngle(onboard.Actuator(c.Args[0]), angle); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "print the current tank status",
		Func: func(c *ishell.Context) {
			out, err := json.MarshalIndent(tank.Status(), "", "  ")
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(string(out))
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "ports",
		Help: "list serial ports",
		Func: func(c *ishell.Context) {
			ports, err := hardware.SerialPorts()
			if err != nil {
				c.Err(err)
				return
			}
			for _, p := range ports {
				c.Println(p)
			}
		},
	})

	return shell
}
