package server

const helpText = `available commands:
  /create <group>        create a new group and switch to it
  /invite <user>         invite a user to the target group
  /accept <group>        accept a pending invite
  /leave                 leave the target group
  /users                 list members of the target group
  /banned                show your ban list
  /ban <user>            ban a user from your groups
  /kick <user> [reason]  kick a user from the target group (admin)
  /lock                  restrict invites to the admin (admin)
  /unlock                reopen invites to all members (admin)
  /help                  show this message`
